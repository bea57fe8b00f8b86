package dto

import "github.com/spotdesk/escrow-reconciler/internal/recon"

type ReconcileResponse struct {
	RunID    string `json:"run_id"`
	Scanned  int    `json:"scanned"`
	Skipped  int    `json:"skipped"`
	Faulty   int    `json:"faulty"`
	Repaired int    `json:"repaired"`
	Failed   int    `json:"failed"`
	Elapsed  string `json:"elapsed"`
}

func FromSummary(s *recon.Summary) ReconcileResponse {
	return ReconcileResponse{
		RunID:    s.RunID,
		Scanned:  s.Scanned,
		Skipped:  s.Skipped,
		Faulty:   s.Faulty,
		Repaired: s.Repaired,
		Failed:   s.Failed,
		Elapsed:  s.Elapsed.String(),
	}
}

type HealthResponse struct {
	Status string `json:"status"`
}
