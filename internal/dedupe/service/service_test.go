package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rollguard/internal/dedupe/models"
	"rollguard/internal/dedupe/ports/mocks"
	flagstore "rollguard/internal/dedupe/store"
	identity "rollguard/internal/identity/models"
	identitystore "rollguard/internal/identity/store"
	"rollguard/internal/matching/biometric"
	biomocks "rollguard/internal/matching/biometric/mocks"
	"rollguard/internal/scoring"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/audit"
	"rollguard/pkg/platform/audit/publishers/compliance"
	auditmemory "rollguard/pkg/platform/audit/store/memory"
	"rollguard/pkg/platform/sentinel"
)

// =============================================================================
// Dedupe Service Test Suite
// =============================================================================
// Justification for unit tests: detection must compare exactly the pairs it
// reports, never duplicate a flag and leave no trace on dry runs. Resolution
// must only move flags forward and write the roll change and the audit entry
// together.

type DedupeServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	records *identitystore.InMemoryStore
	flags   *flagstore.InMemoryStore
	audit   *auditmemory.InMemoryStore
	events  *mocks.MockEventPublisher
	service *Service
	now     time.Time
}

func TestDedupeServiceSuite(t *testing.T) {
	suite.Run(t, new(DedupeServiceSuite))
}

func (s *DedupeServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.records = identitystore.NewInMemory(population()...)
	s.flags = flagstore.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.events = mocks.NewMockEventPublisher(s.ctrl)
	s.events.EXPECT().PublishFlag(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.service = s.newService()
}

func (s *DedupeServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DedupeServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRecordLifecycle(s.records),
		WithAuditPublisher(compliance.New(s.audit)),
		WithEventPublisher(s.events),
		WithWorkers(4),
		WithClock(func() time.Time { return s.now }),
	}
	svc, err := New(s.records, s.flags, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func person(id, name, dob, nid, street, district, pin string) identity.IdentityRecord {
	return identity.IdentityRecord{
		ID:         id,
		Name:       name,
		DOB:        dob,
		NationalID: nid,
		Address: identity.Address{
			House:    "1",
			Street:   street,
			City:     district,
			District: district,
			State:    "Maharashtra",
			PIN:      pin,
		},
		Active: true,
	}
}

// population holds five distinct people plus one re-registration of V01.
func population() []identity.IdentityRecord {
	return []identity.IdentityRecord{
		person("V01", "Rajesh Kumar", "1985-03-12", "1234 5678 9012", "MG Road", "Pune", "411001"),
		person("V02", "Priya Sharma", "1992-07-01", "2222 3333 4444", "FC Road", "Nashik", "422001"),
		person("V03", "Mohammed Iqbal", "1970-11-23", "5555 6666 7777", "Station Road", "Nagpur", "440001"),
		person("V04", "Sunita Devi", "2001-01-05", "8888 9999 0000", "Tilak Road", "Satara", "415001"),
		person("V05", "Arjun Reddy", "1963-09-30", "1111 0000 2222", "Lake Road", "Kolhapur", "416001"),
		person("V06", "Rajesh Kumar", "1985-03-12", "1234-5678-9012", "MG Road", "Pune", "411001"),
	}
}

func (s *DedupeServiceSuite) detect(req models.DetectRequest) *models.DetectResult {
	res, err := s.service.Detect(context.Background(), req)
	s.Require().NoError(err)
	return res
}

func (s *DedupeServiceSuite) storedFlags() []*models.DuplicateFlag {
	flags, _, err := s.flags.List(context.Background(), models.ListFilter{Page: 1, Limit: 100})
	s.Require().NoError(err)
	return flags
}

// =============================================================================
// Constructor
// =============================================================================

func (s *DedupeServiceSuite) TestNewRequiresDependencies() {
	_, err := New(nil, s.flags)
	s.Require().Error(err)
	s.Contains(err.Error(), "record source is required")

	_, err = New(s.records, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "flag store is required")
}

// =============================================================================
// Detect
// =============================================================================

func (s *DedupeServiceSuite) TestDetectFlagsDuplicatePair() {
	res := s.detect(models.DetectRequest{})

	s.Equal(6, res.Records)
	s.Equal(int64(15), res.Comparisons, "n(n-1)/2 pairs")
	s.Equal(0.85, res.Threshold)
	s.Equal("all", res.Scope)
	s.False(res.Cancelled)
	s.NotEmpty(res.RunID)
	s.Require().Len(res.Flags, 1)

	flag := res.Flags[0]
	s.Equal("V01", flag.RecordA)
	s.Equal("V06", flag.RecordB)
	s.Equal(models.StatusPending, flag.Status)
	s.Equal(res.RunID, flag.RunID)
	s.InDelta(1.0, flag.Score.Combined, 1e-9)
	s.True(flag.Score.HasFlag(scoring.FlagAadhaarExactMatch))

	stored := s.storedFlags()
	s.Require().Len(stored, 1)
	s.Equal(flag.ID, stored[0].ID)
}

func (s *DedupeServiceSuite) TestDetectIsIdempotent() {
	first := s.detect(models.DetectRequest{})
	s.Require().Len(first.Flags, 1)

	second := s.detect(models.DetectRequest{})
	s.Equal(int64(15), second.Comparisons)
	s.Empty(second.Flags)
	s.Equal(0, second.FlagsFound)
	s.Len(s.storedFlags(), 1)
}

func (s *DedupeServiceSuite) TestDetectSkipsResolvedPairs() {
	first := s.detect(models.DetectRequest{})
	_, err := s.service.Resolve(context.Background(), first.Flags[0].ID, models.Resolution{
		Action: models.ActionReject, Reviewer: "officer-1",
	})
	s.Require().NoError(err)

	again := s.detect(models.DetectRequest{})
	s.Empty(again.Flags, "a rejected pair is not flagged again")
}

func (s *DedupeServiceSuite) TestDetectComparisonCount() {
	for _, n := range []int{0, 1, 2, 10} {
		s.Run(fmt.Sprintf("n=%d", n), func() {
			records := make([]identity.IdentityRecord, n)
			for i := range records {
				records[i] = identity.IdentityRecord{ID: fmt.Sprintf("R%03d", i), Name: fmt.Sprintf("Person %d", i), Active: true}
			}
			svc, err := New(identitystore.NewInMemory(records...), flagstore.NewInMemory(),
				WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			s.Require().NoError(err)

			res, err := svc.Detect(context.Background(), models.DetectRequest{DryRun: true})
			s.Require().NoError(err)
			s.Equal(int64(n*(n-1)/2), res.Comparisons)
		})
	}
}

func (s *DedupeServiceSuite) TestDetectDryRunHasNoSideEffects() {
	events := mocks.NewMockEventPublisher(s.ctrl)
	lock := mocks.NewMockRunLock(s.ctrl)
	svc := s.newService(WithEventPublisher(events), WithRunLock(lock))

	res, err := svc.Detect(context.Background(), models.DetectRequest{DryRun: true})
	s.Require().NoError(err)
	s.True(res.DryRun)
	s.Len(res.Flags, 1)
	s.Empty(s.storedFlags())
	// The strict lock and publisher mocks fail the test if touched.
}

func (s *DedupeServiceSuite) TestCommitPersistsDryRunResult() {
	res := s.detect(models.DetectRequest{DryRun: true})
	s.Empty(s.storedFlags())

	created, err := s.service.Commit(context.Background(), res)
	s.Require().NoError(err)
	s.Equal(1, created)
	s.Len(s.storedFlags(), 1)

	created, err = s.service.Commit(context.Background(), res)
	s.Require().NoError(err)
	s.Equal(0, created, "pairs flagged in the meantime are skipped")

	_, err = s.service.Commit(context.Background(), nil)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *DedupeServiceSuite) TestDetectScope() {
	s.Require().NoError(s.records.Put(context.Background(),
		person("V07", "Priya Sharma", "1992-07-01", "2222 3333 4444", "FC Road", "Nashik", "422001")))

	res := s.detect(models.DetectRequest{Scope: identity.Scope{Kind: identity.ScopeDistrict, Value: "Nashik"}})
	s.Equal("district:nashik", res.Scope)
	s.Equal(2, res.Records)
	s.Equal(int64(1), res.Comparisons)
	s.Require().Len(res.Flags, 1)
	s.Equal("V02", res.Flags[0].RecordA)
	s.Equal("district:nashik", res.Flags[0].Scope)
}

func (s *DedupeServiceSuite) TestDetectSkipsMalformedRecords() {
	ctx := context.Background()
	s.Require().NoError(s.records.Put(ctx, identity.IdentityRecord{ID: "", Name: "No Id", Active: true}))
	s.Require().NoError(s.records.Put(ctx, identity.IdentityRecord{ID: "V08", Name: "Bad Date", DOB: "12/03/1985", Active: true}))

	res := s.detect(models.DetectRequest{})
	s.Equal(2, res.Skipped)
	s.Equal(6, res.Records)
	s.Equal(int64(15), res.Comparisons)
	s.Len(res.Flags, 1)
}

func (s *DedupeServiceSuite) TestDetectSkipsRepeatedIDs() {
	ctrl := s.ctrl
	source := mocks.NewMockRecordSource(ctrl)
	recs := population()
	recs = append(recs, recs[1])
	source.EXPECT().Fetch(gomock.Any(), identity.AllScope).Return(recs, nil)

	svc, err := New(source, s.flags, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	res, err := svc.Detect(context.Background(), models.DetectRequest{DryRun: true})
	s.Require().NoError(err)
	s.Equal(1, res.Skipped)
	s.Equal(6, res.Records)
	s.Len(res.Flags, 1)
}

func (s *DedupeServiceSuite) TestDetectThreshold() {
	s.Run("out of range", func() {
		_, err := s.service.Detect(context.Background(), models.DetectRequest{Threshold: 1.5})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("low threshold raises more flags", func() {
		res := s.detect(models.DetectRequest{Threshold: 0.01, DryRun: true})
		s.Greater(len(res.Flags), 1)
		for i := 1; i < len(res.Flags); i++ {
			s.GreaterOrEqual(res.Flags[i-1].Score.Combined, res.Flags[i].Score.Combined, "sorted by score")
		}
	})
}

func (s *DedupeServiceSuite) TestDetectThresholdOneFlagsIdenticalBiometrics() {
	twin := func(id string) identity.IdentityRecord {
		return identity.IdentityRecord{
			ID:          id,
			Name:        "Kiran Rao",
			Active:      true,
			Face:        []float64{0.3, 0.7, 0.11},
			Fingerprint: []identity.Minutia{{X: 1, Y: 2, Angle: 0}, {X: 4, Y: 5, Angle: 0}},
		}
	}
	svc, err := New(identitystore.NewInMemory(twin("K1"), twin("K2")), flagstore.NewInMemory(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	for _, raw := range []string{"face", "fingerprint,phonetic", "all"} {
		s.Run(raw, func() {
			algs, err := scoring.ParseAlgorithms(raw)
			s.Require().NoError(err)

			res, err := svc.Detect(context.Background(), models.DetectRequest{Threshold: 1.0, Algorithms: algs, DryRun: true})
			s.Require().NoError(err)
			s.Equal(int64(1), res.Comparisons)
			s.Require().Len(res.Flags, 1, "identical records self-match at threshold 1")
			s.Equal(1.0, res.Flags[0].Score.Combined)
		})
	}
}

func (s *DedupeServiceSuite) TestDetectAlgorithmSubset() {
	algs, err := scoring.ParseAlgorithms("dob")
	s.Require().NoError(err)

	// V01 and V06 share a birth date; no other pair does.
	res := s.detect(models.DetectRequest{Algorithms: algs, DryRun: true})
	s.Equal([]scoring.Algorithm{scoring.AlgoDOB}, res.Algorithms)
	s.Require().Len(res.Flags, 1)
	s.Equal(1.0, res.Flags[0].Score.Signals[scoring.SignalDOB])
	s.NotContains(res.Flags[0].Score.Signals, scoring.SignalExactID)
}

func (s *DedupeServiceSuite) TestDetectCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.service.Detect(ctx, models.DetectRequest{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Require().NotNil(res)
	s.True(res.Cancelled)
	s.Less(res.Comparisons, int64(15))
}

func (s *DedupeServiceSuite) TestDetectCancelledMidRunKeepsFoundFlags() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := s.newService(WithWorkers(1), WithBlocker(cancellingBlocker{after: 1, cancel: cancel}))

	res, err := svc.Detect(ctx, models.DetectRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Require().NotNil(res)
	s.True(res.Cancelled)
	s.LessOrEqual(res.Comparisons, int64(1))
	s.Len(s.storedFlags(), len(res.Flags))
}

// cancellingBlocker yields the duplicate pair first and cancels the run
// after `after` pairs.
type cancellingBlocker struct {
	after  int
	cancel context.CancelFunc
}

func (b cancellingBlocker) Pairs(subjects []scoring.Subject) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		n := 0
		for i := range subjects {
			for j := len(subjects) - 1; j > i; j-- {
				if n == b.after {
					b.cancel()
				}
				n++
				if !yield(i, j) {
					return
				}
			}
		}
	}
}

func (s *DedupeServiceSuite) TestDetectRunLock() {
	s.Run("held lock conflicts", func() {
		lock := mocks.NewMockRunLock(s.ctrl)
		lock.EXPECT().Acquire(gomock.Any(), "detect:all", defaultLockTTL).
			Return(nil, fmt.Errorf("held: %w", sentinel.ErrConflict))
		_, err := s.newService(WithRunLock(lock)).Detect(context.Background(), models.DetectRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
	s.Run("lock backend down", func() {
		lock := mocks.NewMockRunLock(s.ctrl)
		lock.EXPECT().Acquire(gomock.Any(), "detect:all", gomock.Any()).Return(nil, errors.New("dial tcp: refused"))
		_, err := s.newService(WithRunLock(lock)).Detect(context.Background(), models.DetectRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
	s.Run("released after run", func() {
		released := false
		lock := mocks.NewMockRunLock(s.ctrl)
		lock.EXPECT().Acquire(gomock.Any(), "detect:all", gomock.Any()).Return(func(context.Context) error {
			released = true
			return nil
		}, nil)
		_, err := s.newService(WithRunLock(lock)).Detect(context.Background(), models.DetectRequest{})
		s.Require().NoError(err)
		s.True(released)
	})
}

func (s *DedupeServiceSuite) TestLocalRunLockRejectsOverlap() {
	lock := newLocalRunLock()
	release, err := lock.Acquire(context.Background(), "detect:all", time.Minute)
	s.Require().NoError(err)

	_, err = lock.Acquire(context.Background(), "detect:all", time.Minute)
	s.ErrorIs(err, sentinel.ErrConflict)

	s.NoError(release(context.Background()))
	s.NoError(release(context.Background()))
	again, err := lock.Acquire(context.Background(), "detect:all", time.Minute)
	s.Require().NoError(err)
	s.NoError(again(context.Background()))
}

func (s *DedupeServiceSuite) TestConcurrentDetectRunsOneFlagPerPair() {
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Detect(context.Background(), models.DetectRequest{})
			if err != nil {
				s.True(dErrors.HasCode(err, dErrors.CodeConflict))
			}
		}()
	}
	wg.Wait()
	s.Len(s.storedFlags(), 1)
}

func (s *DedupeServiceSuite) TestDetectFetchFailure() {
	source := mocks.NewMockRecordSource(s.ctrl)
	source.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	svc, err := New(source, s.flags)
	s.Require().NoError(err)

	_, err = svc.Detect(context.Background(), models.DetectRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *DedupeServiceSuite) TestDetectPublishesNewFlags() {
	events := mocks.NewMockEventPublisher(s.ctrl)
	events.EXPECT().PublishFlag(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e models.FlagEvent) error {
			s.Equal(models.EventFlagRaised, e.Type)
			s.Equal("V01", e.RecordA)
			return nil
		})
	res, err := s.newService(WithEventPublisher(events)).Detect(context.Background(), models.DetectRequest{})
	s.Require().NoError(err)
	s.Len(res.Flags, 1)
}

func (s *DedupeServiceSuite) TestPublishFailureDoesNotFailRun() {
	events := mocks.NewMockEventPublisher(s.ctrl)
	events.EXPECT().PublishFlag(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	res, err := s.newService(WithEventPublisher(events)).Detect(context.Background(), models.DetectRequest{})
	s.Require().NoError(err)
	s.Len(res.Flags, 1)
	s.Len(s.storedFlags(), 1)
}

func (s *DedupeServiceSuite) TestBlockersLimitComparisons() {
	s.Run("phonetic", func() {
		res, err := s.newService(WithBlocker(PhoneticBlocker{})).Detect(context.Background(), models.DetectRequest{DryRun: true})
		s.Require().NoError(err)
		s.Less(res.Comparisons, int64(15))
		s.Len(res.Flags, 1)
	})
	s.Run("address", func() {
		res, err := s.newService(WithBlocker(AddressBlocker{})).Detect(context.Background(), models.DetectRequest{DryRun: true})
		s.Require().NoError(err)
		s.Equal(int64(1), res.Comparisons)
		s.Len(res.Flags, 1)
	})
}

func (s *DedupeServiceSuite) TestFaceBlockerComparesSimilarFaces() {
	recs := population()
	recs[0].Face = []float64{0.3, 0.7, 0.11}
	recs[5].Face = []float64{0.6, 1.4, 0.22}
	recs[1].Face = []float64{0.9, 0.1, 0.3}
	subjects := make([]scoring.Subject, len(recs))
	for i, r := range recs {
		subjects[i] = scoring.Prepare(r)
	}

	var pairs [][2]int
	for i, j := range (FaceBlocker{}).Pairs(subjects) {
		s.Less(i, j)
		pairs = append(pairs, [2]int{i, j})
	}
	// V01~V06 by face, then the three faceless records among themselves.
	s.ElementsMatch([][2]int{{0, 5}, {2, 3}, {2, 4}, {3, 4}}, pairs)

	svc, err := New(identitystore.NewInMemory(recs...), flagstore.NewInMemory(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBlocker(FaceBlocker{}))
	s.Require().NoError(err)
	res, err := svc.Detect(context.Background(), models.DetectRequest{DryRun: true})
	s.Require().NoError(err)
	s.Equal(int64(4), res.Comparisons)
	s.Require().Len(res.Flags, 1)
	s.True(res.Flags[0].Score.HasFlag(scoring.FlagFaceMatch))
}

func (s *DedupeServiceSuite) TestDetectEnrichesFromCaptures() {
	enrolled := func(id string) identity.IdentityRecord {
		return identity.IdentityRecord{ID: id, Name: "Kiran Rao", Active: true}
	}
	records := identitystore.NewInMemory(enrolled("K1"), enrolled("K2"), enrolled("K3"))
	algs, err := scoring.ParseAlgorithms("face")
	s.Require().NoError(err)
	req := models.DetectRequest{Threshold: 1.0, Algorithms: algs, DryRun: true}

	newService := func(src *mocks.MockCaptureSource, ex *biomocks.MockFeatureExtractor) *Service {
		svc, err := New(records, flagstore.NewInMemory(),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithEnrichment(src, ex))
		s.Require().NoError(err)
		return svc
	}

	s.Run("extracted faces are scored", func() {
		src := mocks.NewMockCaptureSource(s.ctrl)
		ex := biomocks.NewMockFeatureExtractor(s.ctrl)
		src.EXPECT().Captures(gomock.Any(), gomock.InAnyOrder([]string{"K1", "K2", "K3"})).Return(map[string]biometric.Captures{
			"K1": {Face: []byte("k1-face")},
			"K2": {Face: []byte("k2-face")},
			"K3": {Face: []byte("k3-face")},
		}, nil)
		face := []float64{0.3, 0.7, 0.11}
		ex.EXPECT().FaceEmbedding(gomock.Any(), []byte("k1-face")).Return(face, 0.9, nil)
		ex.EXPECT().FaceEmbedding(gomock.Any(), []byte("k2-face")).Return(face, 0.9, nil)
		ex.EXPECT().FaceEmbedding(gomock.Any(), []byte("k3-face")).Return(nil, 0.0, errors.New("no face found"))

		res, err := newService(src, ex).Detect(context.Background(), req)
		s.Require().NoError(err)
		s.Equal(3, res.Records, "a failed extraction keeps the record")
		s.Require().Len(res.Flags, 1)
		s.Equal("K1", res.Flags[0].RecordA)
		s.Equal("K2", res.Flags[0].RecordB)
		s.True(res.Flags[0].Score.HasFlag(scoring.FlagFaceMatch))
	})

	s.Run("unavailable captures leave records as enrolled", func() {
		src := mocks.NewMockCaptureSource(s.ctrl)
		ex := biomocks.NewMockFeatureExtractor(s.ctrl)
		src.EXPECT().Captures(gomock.Any(), gomock.Any()).Return(nil, errors.New("share offline"))

		res, err := newService(src, ex).Detect(context.Background(), req)
		s.Require().NoError(err)
		s.Equal(3, res.Records)
		s.Empty(res.Flags)
	})
}

// =============================================================================
// Resolve
// =============================================================================

func (s *DedupeServiceSuite) pendingFlag() *models.DuplicateFlag {
	res := s.detect(models.DetectRequest{})
	s.Require().Len(res.Flags, 1)
	return res.Flags[0]
}

func (s *DedupeServiceSuite) TestResolveMerge() {
	flag := s.pendingFlag()
	ctx := context.Background()

	got, err := s.service.Resolve(ctx, flag.ID, models.Resolution{
		Action: models.ActionMerge, Reviewer: "officer-1", Note: "same person",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusMerged, got.Status)
	s.Equal("V01", got.MergedInto)
	s.Equal("officer-1", got.Reviewer)
	s.Require().NotNil(got.AppealUntil)
	s.Equal(s.now.Add(defaultAppealWindow), *got.AppealUntil)
	s.Require().NotNil(got.ResolvedAt)

	loser, err := s.records.Get(ctx, "V06")
	s.Require().NoError(err)
	s.False(loser.Active)
	linked, _ := s.records.LinkedTo("V06")
	s.Equal("V01", linked)
	survivor, err := s.records.Get(ctx, "V01")
	s.Require().NoError(err)
	s.True(survivor.Active)

	events, err := s.audit.ListBySubject(ctx, flag.ID.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventVoterMerged), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal("officer-1", events[0].ActorID)
	s.Equal("same person", events[0].Reason)
	s.Equal("V01", events[0].Metadata["merged_into"])
}

func (s *DedupeServiceSuite) TestResolveMergeIntoRecordB() {
	flag := s.pendingFlag()
	got, err := s.service.Resolve(context.Background(), flag.ID, models.Resolution{
		Action: models.ActionMerge, Reviewer: "r", MergedInto: "V06",
	})
	s.Require().NoError(err)
	s.Equal("V06", got.MergedInto)
	loser, err := s.records.Get(context.Background(), "V01")
	s.Require().NoError(err)
	s.False(loser.Active)
}

func (s *DedupeServiceSuite) TestResolveMergeRejectsForeignSurvivor() {
	flag := s.pendingFlag()
	_, err := s.service.Resolve(context.Background(), flag.ID, models.Resolution{
		Action: models.ActionMerge, Reviewer: "r", MergedInto: "V03",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DedupeServiceSuite) TestResolveGhostDeactivatesBoth() {
	flag := s.pendingFlag()
	got, err := s.service.Resolve(context.Background(), flag.ID, models.Resolution{Action: models.ActionGhost, Reviewer: "r"})
	s.Require().NoError(err)
	s.Equal(models.StatusGhost, got.Status)

	active, err := s.records.Fetch(context.Background(), identity.AllScope)
	s.Require().NoError(err)
	s.Len(active, 4)

	events, err := s.audit.ListBySubject(context.Background(), flag.ID.String())
	s.Require().NoError(err)
	s.Equal(string(audit.EventVoterGhosted), events[0].Action)
}

func (s *DedupeServiceSuite) TestResolveRejectKeepsRecords() {
	flag := s.pendingFlag()
	got, err := s.service.Resolve(context.Background(), flag.ID, models.Resolution{Action: models.ActionReject, Reviewer: "r"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.Nil(got.AppealUntil)

	active, err := s.records.Fetch(context.Background(), identity.AllScope)
	s.Require().NoError(err)
	s.Len(active, 6)

	events, err := s.audit.ListBySubject(context.Background(), flag.ID.String())
	s.Require().NoError(err)
	s.Equal(string(audit.EventDuplicateResolved), events[0].Action)
}

func (s *DedupeServiceSuite) TestResolveTransitions() {
	ctx := context.Background()
	flag := s.pendingFlag()

	got, err := s.service.Resolve(ctx, flag.ID, models.Resolution{Action: models.ActionEscalate, Reviewer: "r1"})
	s.Require().NoError(err)
	s.Equal(models.StatusEscalated, got.Status)
	s.Nil(got.ResolvedAt)

	_, err = s.service.Resolve(ctx, flag.ID, models.Resolution{Action: models.ActionEscalate, Reviewer: "r2"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.service.Resolve(ctx, flag.ID, models.Resolution{Action: models.ActionReject, Reviewer: "r2"})
	s.Require().NoError(err)

	for _, action := range []models.Action{models.ActionMerge, models.ActionReject, models.ActionGhost, models.ActionEscalate} {
		_, err = s.service.Resolve(ctx, flag.ID, models.Resolution{Action: action, Reviewer: "r3"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "terminal flags accept no %s", action)
	}

	stored, err := s.service.Get(ctx, flag.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, stored.Status)
	s.Equal("r2", stored.Reviewer)
}

func (s *DedupeServiceSuite) TestResolveValidation() {
	flag := s.pendingFlag()
	ctx := context.Background()

	_, err := s.service.Resolve(ctx, flag.ID, models.Resolution{Action: "approve", Reviewer: "r"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Resolve(ctx, flag.ID, models.Resolution{Action: models.ActionReject})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Resolve(ctx, uuid.New(), models.Resolution{Action: models.ActionReject, Reviewer: "r"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DedupeServiceSuite) TestResolveAppealOverride() {
	flag := s.pendingFlag()
	until := s.now.Add(7 * 24 * time.Hour)
	got, err := s.service.Resolve(context.Background(), flag.ID, models.Resolution{
		Action: models.ActionGhost, Reviewer: "r", AppealUntil: &until,
	})
	s.Require().NoError(err)
	s.Equal(until, *got.AppealUntil)
}

func (s *DedupeServiceSuite) TestResolveAuditFailureFailsResolution() {
	flag := s.pendingFlag()
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("ledger unavailable"))
	svc := s.newService(WithAuditPublisher(auditor))

	_, err := svc.Resolve(context.Background(), flag.ID, models.Resolution{Action: models.ActionReject, Reviewer: "r"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *DedupeServiceSuite) TestResolveLifecycleFailure() {
	flag := s.pendingFlag()
	lifecycle := mocks.NewMockRecordLifecycle(s.ctrl)
	lifecycle.EXPECT().Deactivate(gomock.Any(), []string{"V06"}, "V01").Return(errors.New("roll locked"))
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	svc := s.newService(WithRecordLifecycle(lifecycle), WithAuditPublisher(auditor))

	_, err := svc.Resolve(context.Background(), flag.ID, models.Resolution{Action: models.ActionMerge, Reviewer: "r"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *DedupeServiceSuite) TestResolveRunsInTransaction() {
	flag := s.pendingFlag()
	tx := &recordingTx{}
	svc := s.newService(WithTxRunner(tx))

	_, err := svc.Resolve(context.Background(), flag.ID, models.Resolution{Action: models.ActionReject, Reviewer: "r"})
	s.Require().NoError(err)
	s.Equal(1, tx.calls)
}

func (s *DedupeServiceSuite) TestConcurrentResolveOneWins() {
	flag := s.pendingFlag()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	actions := []models.Action{models.ActionMerge, models.ActionReject, models.ActionGhost, models.ActionReject}
	for _, action := range actions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Resolve(context.Background(), flag.ID, models.Resolution{Action: action, Reviewer: "r"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			code := dErrors.CodeOf(err)
			s.True(code == dErrors.CodeConflict || code == dErrors.CodeInvariantViolation, "unexpected %v", err)
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
}

type recordingTx struct {
	calls int
}

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

// =============================================================================
// Queries
// =============================================================================

func (s *DedupeServiceSuite) TestGetAndList() {
	flag := s.pendingFlag()
	ctx := context.Background()

	got, err := s.service.Get(ctx, flag.ID)
	s.Require().NoError(err)
	s.Equal(flag.Key(), got.Key())

	_, err = s.service.Get(ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	page, err := s.service.List(ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Equal(1, page.Page)
	s.Equal(defaultPageLimit, page.Limit)
	s.Equal(1, page.Total)

	page, err = s.service.List(ctx, models.ListFilter{Limit: 1000, Status: models.StatusMerged})
	s.Require().NoError(err)
	s.Equal(maxPageLimit, page.Limit)
	s.Empty(page.Flags)

	_, err = s.service.List(ctx, models.ListFilter{Status: "open"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
