package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by snapshotting backends. Each bucket holds one JSON
// encoded collection; "meta" holds the revision counter.
const (
	BucketMeta     = "meta"
	BucketCases    = "cases"
	BucketLabItems = "lab_items"
	BucketScans    = "scans"
	BucketPatients = "patients"
	BucketDentists = "dentists"
	BucketClinics  = "clinics"
)

// Buckets lists every bucket written on save, in write order.
var Buckets = []string{BucketMeta, BucketCases, BucketLabItems, BucketScans, BucketPatients, BucketDentists, BucketClinics}

type metaPayload struct {
	Revision uint64 `json:"revision"`
}

// EncodeBuckets splits a snapshot into per-bucket JSON payloads.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		target, err := bucketTarget(&s, bucket)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets are
// ignored so older binaries can read newer documents.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var s Snapshot
	for bucket, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		target, err := bucketTarget(&s, bucket)
		if err != nil {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return s, nil
}

// DecodeRevision reads the revision from a meta payload; malformed payloads read as zero.
func DecodeRevision(payload []byte) uint64 {
	var meta metaPayload
	if err := json.Unmarshal(payload, &meta); err != nil {
		return 0
	}
	return meta.Revision
}

func bucketTarget(s *Snapshot, bucket string) (any, error) {
	switch bucket {
	case BucketMeta:
		return &revisionField{s: s}, nil
	case BucketCases:
		return &s.Cases, nil
	case BucketLabItems:
		return &s.LabItems, nil
	case BucketScans:
		return &s.Scans, nil
	case BucketPatients:
		return &s.Patients, nil
	case BucketDentists:
		return &s.Dentists, nil
	case BucketClinics:
		return &s.Clinics, nil
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

// revisionField adapts Snapshot.Revision to the meta bucket payload.
type revisionField struct{ s *Snapshot }

func (r *revisionField) MarshalJSON() ([]byte, error) {
	return json.Marshal(metaPayload{Revision: r.s.Revision})
}

func (r *revisionField) UnmarshalJSON(data []byte) error {
	var meta metaPayload
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	r.s.Revision = meta.Revision
	return nil
}
