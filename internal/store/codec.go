package store

import (
	"encoding/json"
	"fmt"

	"github.com/learnsphere/moderation/internal/model"
)

// Decode unmarshals every record of a bucket into T.
func Decode[T any](bucket string, records []Record) ([]T, error) {
	out := make([]T, 0, len(records))

	for i, rec := range records {
		var item T
		if err := json.Unmarshal(rec, &item); err != nil {
			return nil, model.StoreUnavailable(fmt.Errorf("failed to decode %s[%d]: %w", bucket, i, err))
		}
		out = append(out, item)
	}

	return out, nil
}

// Encode marshals items into records.
func Encode[T any](items []T) ([]Record, error) {
	out := make([]Record, 0, len(items))

	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, model.StoreUnavailable(fmt.Errorf("failed to encode record: %w", err))
		}
		out = append(out, data)
	}

	return out, nil
}

// Load reads and decodes a bucket.
func Load[T any](r Reader, bucket string) ([]T, error) {
	records, err := r.Read(bucket)
	if err != nil {
		return nil, err
	}

	return Decode[T](bucket, records)
}

// Save encodes and writes a bucket.
func Save[T any](tx Tx, bucket string, items []T) error {
	records, err := Encode(items)
	if err != nil {
		return err
	}

	return tx.Write(bucket, records)
}

// EncodeArray packs records into one JSON array document.
func EncodeArray(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("failed to encode bucket: %w", err))
	}

	return data, nil
}

// DecodeArray unpacks a JSON array document; empty input is an empty bucket.
func DecodeArray(bucket string, data []byte) ([]Record, error) {
	if len(data) == 0 {
		return []Record{}, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("failed to parse bucket %s: %w", bucket, err))
	}

	if records == nil {
		records = []Record{}
	}

	return records, nil
}
