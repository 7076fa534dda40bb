package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the durable backends to store snapshot sections.
const (
	BucketAssets    = "assets"
	BucketEmployees = "employees"
)

// Buckets lists the snapshot sections in write order.
var Buckets = []string{BucketAssets, BucketEmployees}

// EncodeBuckets renders each snapshot section as a JSON document.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketAssets:
			data, err = json.Marshal(snapshot.Assets)
		case BucketEmployees:
			data, err = json.Marshal(snapshot.Employees)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket merges one stored section into snapshot. Unknown buckets and
// empty payloads are ignored.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketAssets:
		target = &snapshot.Assets
	case BucketEmployees:
		target = &snapshot.Employees
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
