package handler

import "discard/internal/nullifier/models"

type CheckResponse struct {
	Results []models.BatchResult `json:"results"`
}
