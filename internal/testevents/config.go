package testevents

import "time"

// Config holds configuration for a simulator run.
type Config struct {
	Addr        string        // listen address of the websocket endpoint
	NumCommits  int           // commits to broadcast
	Actors      int           // distinct synthetic repositories
	Rate        int           // commits per second, 0 for unthrottled
	StartSeq    int64         // seq of the first commit minus one
	ErrorEvery  int           // emit an error frame every N commits, 0 disables
	WaitTimeout time.Duration // how long to wait for the first subscriber
	ServiceURL  string        // blueskyer HTTP API to verify against, optional
	Timeout     time.Duration // HTTP request timeout
	LogFile     string        // log file for run output
	Verbose     bool          // enable verbose logging
}

// ServiceStats mirrors the service's /stats response.
type ServiceStats struct {
	State             string `json:"state"`
	Cursor            int64  `json:"cursor"`
	QueueLength       int    `json:"queue_length"`
	FramesReceived    uint64 `json:"frames_received"`
	FramesDropped     uint64 `json:"frames_dropped"`
	RecordsDispatched uint64 `json:"records_dispatched"`
}

// Stats holds run statistics.
type Stats struct {
	CommitsGenerated int
	FramesSent       int
	ErrorFrames      int
	TextFrames       int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
