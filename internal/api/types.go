package api

import "github.com/sebastiankruger/nodeset-loader/internal/server"

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	ServerName string            `json:"serverName"`
	Serving    bool              `json:"serving"`
	Installed  int               `json:"installed"`
	NodeCounts map[string]int    `json:"nodeCounts"`
	Namespaces map[string]uint16 `json:"namespaces"`
}

// NodeListResponse is returned by GET /api/nodes
type NodeListResponse struct {
	Count int                  `json:"count"`
	Nodes []server.NodeSummary `json:"nodes"`
}
