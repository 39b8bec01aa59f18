package types

import "time"

// UploadEnvelope is the decoded form of an uploaded report query string.
type UploadEnvelope struct {
	MonitorID  string         `json:"monitor_id"`
	RunID      string         `json:"rid"`
	W3C        bool           `json:"w3c"`
	Protocol   string         `json:"prot"`
	Version    string         `json:"v"`
	Tag        string         `json:"tag"`
	Data       []ReportRecord `json:"data"`
	ReceivedAt time.Time      `json:"received_at"`
}

// ReportRecord is the external shape of a single fetch report item.
type ReportRecord struct {
	RequestID string `json:"RequestID,omitempty"`
	Conn      string `json:"Conn,omitempty"`
	Object    string `json:"Object,omitempty"`
	Ex        string `json:"Ex,omitempty"`
	Result    int64  `json:"Result"`
	T         int    `json:"T"`
	Ctp       string `json:"Ctp,omitempty"`
	Cib       string `json:"Cib,omitempty"`
	Rip       string `json:"Rip,omitempty"`
	Ep        string `json:"Ep,omitempty"`
	Fe        string `json:"Fe,omitempty"`
	Mn        string `json:"Mn,omitempty"`
	Sip       string `json:"Sip,omitempty"`
}
