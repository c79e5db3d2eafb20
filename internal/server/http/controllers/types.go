package controllers

// Request and response bodies of the log endpoints. Payloads travel as
// base64 in JSON ([]byte).

type infoResp struct {
	Backend          string `json:"backend"`
	SupportSubscribe bool   `json:"supportSubscribe"`
}

type logInfo struct {
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
}

type createLogReq struct {
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
}

type createLogResp struct {
	Created bool `json:"created"`
	logInfo
}

type appendReq struct {
	// Partition is used when set, otherwise Key picks the partition, and
	// without a key partition 0 is used.
	Partition *int   `json:"partition,omitempty"`
	Key       string `json:"key,omitempty"`
	Payload   []byte `json:"payload"`
}

type appendResp struct {
	Partition int   `json:"partition"`
	Offset    int64 `json:"offset"`
}

type lagResp struct {
	Group      string         `json:"group"`
	Lower      int64          `json:"lower"`
	Upper      int64          `json:"upper"`
	Lag        int64          `json:"lag"`
	Partitions []partitionLag `json:"partitions"`
}

type partitionLag struct {
	Partition int   `json:"partition"`
	Lower     int64 `json:"lower"`
	Upper     int64 `json:"upper"`
	Lag       int64 `json:"lag"`
}

type recordResp struct {
	Partition int    `json:"partition"`
	Offset    int64  `json:"offset"`
	Payload   []byte `json:"payload"`
}
