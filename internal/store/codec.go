package store

import (
	"encoding/json"
	"fmt"

	"github.com/desertthunder/playroom/internal/shared"
)

// tombstone marks a playlist row for removal inside a transaction.
const tombstone = "__removed__"

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", shared.ErrStorageFailure, err)
	}
	return string(data), nil
}

func decode[T any](raw string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", shared.ErrStorageFailure, err)
	}
	return &v, nil
}
