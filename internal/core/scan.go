package core

import (
	blobcore "alignercore/internal/blob/core"
	"alignercore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
)

// ErrNoBlobStore is returned by attachment operations when the service was
// built without a blob store.
var ErrNoBlobStore = errors.New("core: no attachment store configured")

// CaseFromScanInput carries the planning values supplied when a scan becomes a case.
type CaseFromScanInput struct {
	UpperQty              int
	LowerQty              int
	ChangeEveryDays       int
	AttachmentBondingTray bool
}

func loadScan(tx Transaction, id string) (Scan, error) {
	scan, ok := tx.Snapshot().FindScan(id)
	if !ok {
		return Scan{}, domain.Errorf(domain.ErrScanNotFound, EntityScan, id, "scan %q not found", id)
	}
	return scan, nil
}

func requireUnconverted(scan Scan) error {
	if scan.Status == domain.ScanConverted || scan.CaseID != "" {
		return domain.Errorf(domain.ErrScanAlreadyConverted, EntityScan, scan.ID, "scan already converted to case %s", scan.CaseID)
	}
	return nil
}

// CreateScan records an intake scan in pending review.
func (s *Service) CreateScan(ctx context.Context, scan Scan) (Scan, Result, error) {
	var created Scan
	res, err := s.run(ctx, OpCreateScan, func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		patient, ok := view.FindPatient(scan.PatientID)
		if !ok {
			return "", domain.Errorf(domain.ErrRecordNotFound, EntityPatient, scan.PatientID, "patient %q not found", scan.PatientID)
		}
		for _, id := range []string{scan.DentistID, scan.RequestingDentistID} {
			if id == "" {
				continue
			}
			if _, ok := view.FindDentist(id); !ok {
				return "", domain.Errorf(domain.ErrRecordNotFound, EntityDentist, id, "dentist %q not found", id)
			}
		}
		if !scan.Arch.Valid() {
			return "", invalid(EntityScan, scan.ID, "unknown arch %q", scan.Arch)
		}
		switch scan.Origin {
		case "":
			scan.Origin = domain.OriginInternal
		case domain.OriginInternal, domain.OriginExternal:
		default:
			return "", invalid(EntityScan, scan.ID, "unknown origin %q", scan.Origin)
		}
		if scan.DentistID == "" {
			scan.DentistID = patient.PrimaryDentistID
		}
		if scan.ClinicID == "" {
			scan.ClinicID = patient.ClinicID
		}
		scan.Status = domain.ScanPending
		scan.CaseID = ""
		var err error
		created, err = tx.CreateScan(scan)
		return created.ID, err
	})
	return created, res, err
}

// ApproveScan marks a pending or rejected scan as approved for conversion.
func (s *Service) ApproveScan(ctx context.Context, id string) (Scan, Result, error) {
	return s.reviewScan(ctx, OpApproveScan, id, domain.ScanApproved, "")
}

// RejectScan marks a scan as rejected, keeping the reason in its notes.
func (s *Service) RejectScan(ctx context.Context, id, reason string) (Scan, Result, error) {
	return s.reviewScan(ctx, OpRejectScan, id, domain.ScanRejected, reason)
}

func (s *Service) reviewScan(ctx context.Context, op, id string, status domain.ScanStatus, note string) (Scan, Result, error) {
	var updated Scan
	res, err := s.run(ctx, op, func(tx Transaction) (string, error) {
		scan, err := loadScan(tx, id)
		if err != nil {
			return id, err
		}
		if err := requireUnconverted(scan); err != nil {
			return id, err
		}
		updated, err = tx.UpdateScan(id, func(sc *Scan) error {
			sc.Status = status
			if note != "" {
				sc.Notes = note
			}
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// AttachScanFile uploads a file to the blob store and links its key to the
// scan. The upload is removed again when the scan cannot be updated.
func (s *Service) AttachScanFile(ctx context.Context, scanID, filename, contentType string, r io.Reader) (Scan, Result, error) {
	if s.blobs == nil {
		return Scan{}, Result{}, ErrNoBlobStore
	}
	name := path.Base(path.Clean("/" + filename))
	if name == "/" || name == "." {
		return Scan{}, Result{}, invalid(EntityScan, scanID, "file name is required")
	}
	var current Scan
	if err := s.store.View(ctx, func(v TransactionView) error {
		scan, ok := v.FindScan(scanID)
		if !ok {
			return domain.Errorf(domain.ErrScanNotFound, EntityScan, scanID, "scan %q not found", scanID)
		}
		current = scan
		return requireUnconverted(scan)
	}); err != nil {
		return Scan{}, Result{}, err
	}
	key := fmt.Sprintf("scans/%s/%s", current.ID, name)
	if _, err := s.blobs.Put(ctx, key, r, blobcore.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"scan_id": current.ID, "patient_id": current.PatientID},
	}); err != nil {
		return Scan{}, Result{}, fmt.Errorf("upload %s: %w", key, err)
	}

	var updated Scan
	res, err := s.run(ctx, OpAttachScanFile, func(tx Transaction) (string, error) {
		scan, err := loadScan(tx, scanID)
		if err != nil {
			return scanID, err
		}
		if err := requireUnconverted(scan); err != nil {
			return scanID, err
		}
		updated, err = tx.UpdateScan(scanID, func(sc *Scan) error {
			if !slices.Contains(sc.AttachmentKeys, key) {
				sc.AttachmentKeys = append(sc.AttachmentKeys, key)
			}
			return nil
		})
		return scanID, err
	})
	if err != nil {
		if _, delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("orphaned scan attachment", "key", key, "error", delErr)
		}
	}
	return updated, res, err
}

// ListScans returns the scans visible to actor.
func (s *Service) ListScans(ctx context.Context, actor Actor) ([]Scan, error) {
	var out []Scan
	err := s.view(ctx, "list_scans", func(v TransactionView) error {
		out = NewScope(v, actor).Scans(v.ListScans())
		return nil
	})
	return out, err
}

// CreateCaseFromScan converts an approved scan into a case, copying its
// patient, dentist, clinic, arch, origin, and attachments, and links the scan.
func (s *Service) CreateCaseFromScan(ctx context.Context, scanID string, in CaseFromScanInput) (Case, Result, error) {
	var created Case
	res, err := s.run(ctx, OpCreateCaseFromScan, func(tx Transaction) (string, error) {
		scan, err := loadScan(tx, scanID)
		if err != nil {
			return "", err
		}
		if err := requireUnconverted(scan); err != nil {
			return "", err
		}
		if scan.Status != domain.ScanApproved {
			return "", domain.Errorf(domain.ErrScanNotApproved, EntityScan, scanID, "scan is %s", scan.Status)
		}
		created, err = createCase(tx, Case{
			Origin:                scan.Origin,
			PatientID:             scan.PatientID,
			DentistID:             scan.DentistID,
			RequestingDentistID:   scan.RequestingDentistID,
			ClinicID:              scan.ClinicID,
			ScanID:                scan.ID,
			Arch:                  scan.Arch,
			TotalUpper:            in.UpperQty,
			TotalLower:            in.LowerQty,
			ChangeEveryDays:       in.ChangeEveryDays,
			AttachmentKeys:        slices.Clone(scan.AttachmentKeys),
			AttachmentBondingTray: in.AttachmentBondingTray,
		})
		if err != nil {
			return "", err
		}
		_, err = tx.UpdateScan(scanID, func(sc *Scan) error {
			sc.Status = domain.ScanConverted
			sc.CaseID = created.ID
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}
