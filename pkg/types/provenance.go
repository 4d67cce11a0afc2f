// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ProvenanceRecord links the graphs derived from one source document back
// to that source and to the processing activity that produced them.
type ProvenanceRecord struct {
	// SourceID is the identifier of the harvested document.
	SourceID string `json:"source_id" yaml:"source_id"`

	// GraphKey is the deterministic named-graph key of the document
	// (base + sha256 of SourceID).
	GraphKey string `json:"graph_key" yaml:"graph_key"`

	// Activity is the identifier of the processing activity.
	Activity string `json:"activity" yaml:"activity"`

	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time `json:"ended_at" yaml:"ended_at"`

	// DerivedFrom is the source the derived graphs were computed from.
	DerivedFrom string `json:"derived_from" yaml:"derived_from"`
}

// Proxy is the canonical identifier of a resolved entity together with its
// known members and merged description.
type Proxy struct {
	ID      string   `json:"id" yaml:"id"`
	Members []string `json:"members" yaml:"members"`
	Facts   []Fact   `json:"facts,omitempty" yaml:"facts,omitempty"`
}

// ProxyConflict records an equivalence class whose members were already
// attached to more than one existing proxy.
type ProxyConflict struct {
	SourceID string    `json:"source_id" yaml:"source_id"`
	Chosen   string    `json:"chosen" yaml:"chosen"`
	Others   []string  `json:"others" yaml:"others"`
	Members  []string  `json:"members" yaml:"members"`
	Detected time.Time `json:"detected" yaml:"detected"`
}
