package store

import (
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// errorRecord is the persisted form of models.ErrorInfo. Unlike the API
// representation it keeps the operator detail.
type errorRecord struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Detail  string `json:"detail,omitempty"`
}

func encodeError(info *models.ErrorInfo) ([]byte, error) {
	if info == nil {
		return nil, nil
	}
	return json.Marshal(errorRecord(*info))
}

func decodeError(raw []byte) (*models.ErrorInfo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rec errorRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode error info: %w", err)
	}
	info := models.ErrorInfo(rec)
	return &info, nil
}

func encodeJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON[T any](raw []byte) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
