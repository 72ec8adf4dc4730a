package configstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/txn2/mcp-element-config/pkg/audit"
	"github.com/txn2/mcp-element-config/pkg/element"
	"github.com/txn2/mcp-element-config/pkg/identity"
)

const (
	// DefaultHistoryLimit is the history size used when no policy is configured.
	DefaultHistoryLimit = 10

	// DefaultContentType is assumed when a store carries no content type.
	DefaultContentType = "text/plain"

	tracerName = "github.com/txn2/mcp-element-config/pkg/configstore"
)

// StoreRequest describes a configuration to store.
type StoreRequest struct {
	Series      SeriesName
	ContentType string
	State       State
	Content     []byte
	Comment     string
}

// Service is the public operation surface of the configuration store.
type Service struct {
	elements     element.Resolver
	repo         Repository
	limits       HistoryLimits
	identity     identity.Provider
	audit        audit.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	now          func() time.Time
	purgeOnStore bool
}

// Option configures a Service.
type Option func(*Service)

// WithHistoryLimits sets the retention policy used by purges.
func WithHistoryLimits(l HistoryLimits) Option {
	return func(s *Service) { s.limits = l }
}

// WithIdentity sets the provider of revision creators.
func WithIdentity(p identity.Provider) Option {
	return func(s *Service) { s.identity = p }
}

// WithAuditLogger records configuration events after each committed mutation.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// WithMetrics sets the operation metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source of modification timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPurgeOnStore purges outdated revisions in the same atomic unit as a store.
func WithPurgeOnStore(enabled bool) Option {
	return func(s *Service) { s.purgeOnStore = enabled }
}

// NewService creates a configuration store service.
func NewService(elements element.Resolver, repo Repository, opts ...Option) *Service {
	s := &Service{
		elements: elements,
		repo:     repo,
		limits:   RetentionPolicy{Default: DefaultHistoryLimit},
		identity: identity.ContextProvider{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin starts the span and metrics of an operation. The returned function
// must be deferred with a pointer to the named error result.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "configstore."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.observe(op, start, err)
	}
}

func (s *Service) resolve(ctx context.Context, ref element.Ref) (element.Element, error) {
	el, err := s.elements.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, element.ErrNotFound) {
			return element.Element{}, err
		}
		return element.Element{}, fmt.Errorf("resolving element %s: %w", ref, err)
	}
	return el, nil
}

// update runs fn in the atomic unit of the series with the service clock.
func (s *Service) update(ctx context.Context, key SeriesKey, fn func(*Series) error) error {
	return s.repo.UpdateSeries(ctx, key, func(series *Series) error {
		series.now = s.now
		return fn(series)
	})
}

// locate finds the series holding revision id of the element.
func (s *Service) locate(ctx context.Context, el element.Element, id RevisionID) (SeriesKey, error) {
	r, err := s.repo.Revision(ctx, el.ID, id)
	if err != nil {
		return SeriesKey{}, err
	}
	return r.Key(), nil
}

func (s *Service) emit(ctx context.Context, ev *audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, *ev); err != nil {
		slog.Warn("recording configuration event failed",
			"event_type", ev.Type, "element", ev.ElementName, "series", ev.Series, "error", err)
	}
}

func event(t audit.EventType, el element.Element, series SeriesName, creator string) *audit.Event {
	return audit.NewEvent(t).
		WithElement(el.ID.String(), el.Name).
		WithSeries(string(series)).
		WithCreator(creator)
}

// GetConfig returns the most recently modified revision of a series.
func (s *Service) GetConfig(ctx context.Context, ref element.Ref, name SeriesName) (_ Revision, err error) {
	ctx, end := s.begin(ctx, "get_config", attribute.String("series", string(name)))
	defer end(&err)

	series, err := s.series(ctx, ref, name)
	if err != nil {
		return Revision{}, err
	}
	r, ok := series.Latest()
	if !ok {
		return Revision{}, fmt.Errorf("%w: series %s", ErrNotFound, series.Key())
	}
	return r, nil
}

// GetActiveConfig returns the ACTIVE revision of a series.
func (s *Service) GetActiveConfig(ctx context.Context, ref element.Ref, name SeriesName) (_ Revision, err error) {
	ctx, end := s.begin(ctx, "get_active_config", attribute.String("series", string(name)))
	defer end(&err)

	series, err := s.series(ctx, ref, name)
	if err != nil {
		return Revision{}, err
	}
	r, ok := series.Active()
	if !ok {
		return Revision{}, fmt.Errorf("%w: no ACTIVE revision in series %s", ErrNotFound, series.Key())
	}
	return r, nil
}

func (s *Service) series(ctx context.Context, ref element.Ref, name SeriesName) (*Series, error) {
	el, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	series, err := s.repo.Series(ctx, SeriesKey{ElementID: el.ID, Name: name})
	if err != nil {
		return nil, fmt.Errorf("loading series %s: %w", name, err)
	}
	return series, nil
}

// GetConfigByID returns a revision of the element. A revision of another
// element is reported as not found.
func (s *Service) GetConfigByID(ctx context.Context, ref element.Ref, id RevisionID) (_ Revision, err error) {
	ctx, end := s.begin(ctx, "get_config_by_id", attribute.String("revision", string(id)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return Revision{}, err
	}
	return s.repo.Revision(ctx, el.ID, id)
}

// GetConfigRevisions returns the history of a series, most recent first.
func (s *Service) GetConfigRevisions(ctx context.Context, ref element.Ref, name SeriesName) (_ []Revision, err error) {
	ctx, end := s.begin(ctx, "get_config_revisions", attribute.String("series", string(name)))
	defer end(&err)

	series, err := s.series(ctx, ref, name)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: series %s", ErrNotFound, series.Key())
	}
	return series.Revisions(), nil
}

// FindConfigs returns the most recent revision of every series whose name
// matches the regular expression filter, ordered by name. An empty filter
// matches every series.
func (s *Service) FindConfigs(ctx context.Context, ref element.Ref, filter string) (_ []Revision, err error) {
	ctx, end := s.begin(ctx, "find_configs", attribute.String("filter", filter))
	defer end(&err)

	re, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	el, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.LatestRevisions(ctx, el.ID)
	if err != nil {
		return nil, fmt.Errorf("listing configurations of %s: %w", el.Name, err)
	}
	out := make([]Revision, 0, len(latest))
	for _, r := range latest {
		if re.MatchString(string(r.Series)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func compileFilter(filter string) (*regexp.Regexp, error) {
	if filter == "" {
		filter = ".*"
	}
	re, err := regexp.Compile(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid name filter %q: %v", ErrInvalidArgument, filter, err)
	}
	return re, nil
}

// StoreConfig stores content in a series as CANDIDATE or ACTIVE.
func (s *Service) StoreConfig(ctx context.Context, ref element.Ref, req StoreRequest) (_ StoreResult, err error) {
	ctx, end := s.begin(ctx, "store_config",
		attribute.String("series", string(req.Series)),
		attribute.String("state", string(req.State)))
	defer end(&err)

	if _, err := ParseSeriesName(string(req.Series)); err != nil {
		return StoreResult{}, err
	}
	el, err := s.resolve(ctx, ref)
	if err != nil {
		return StoreResult{}, err
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	creator := s.identity.Creator(ctx)
	limit := s.limits.HistoryLimit(req.Series)

	var (
		res    StoreResult
		purged int
	)
	key := SeriesKey{ElementID: el.ID, Name: req.Series}
	err = s.update(ctx, key, func(series *Series) error {
		var err error
		res, err = series.Store(req.State, StoreInput{
			ContentType: contentType,
			Content:     req.Content,
			Comment:     req.Comment,
			Creator:     creator,
		})
		if err != nil {
			return err
		}
		if s.purgeOnStore {
			purged, err = series.Purge(limit, res.Revision.ID)
		}
		return err
	})
	if err != nil {
		return StoreResult{}, err
	}

	s.metrics.recordStore(req.State, res.Created)
	s.metrics.recordPurged(purged)
	slog.Debug("stored configuration",
		"element", el.Name, "series", req.Series, "revision", res.Revision.ID,
		"state", res.Revision.State, "hash", res.Revision.ContentHash, "created", res.Created)

	s.emit(ctx, event(audit.EventTypeStored, el, req.Series, creator).
		WithRevision(string(res.Revision.ID), string(res.Revision.State), res.Revision.ContentType).
		WithCreated(res.Created))
	if purged > 0 {
		s.emit(ctx, event(audit.EventTypePurged, el, req.Series, creator).WithCount(purged))
	}
	return res, nil
}

// ActivateConfig makes a CANDIDATE revision the ACTIVE one of its series.
func (s *Service) ActivateConfig(ctx context.Context, ref element.Ref, id RevisionID) (_ Revision, err error) {
	ctx, end := s.begin(ctx, "activate_config", attribute.String("revision", string(id)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return Revision{}, err
	}
	key, err := s.locate(ctx, el, id)
	if err != nil {
		return Revision{}, err
	}

	var activated Revision
	err = s.update(ctx, key, func(series *Series) error {
		var err error
		activated, err = series.Activate(id)
		return err
	})
	if err != nil {
		return Revision{}, err
	}

	creator := s.identity.Creator(ctx)
	slog.Debug("activated configuration", "element", el.Name, "series", key.Name, "revision", id)
	s.emit(ctx, event(audit.EventTypeActivated, el, key.Name, creator).
		WithRevision(string(id), string(activated.State), activated.ContentType))
	return activated, nil
}

// RemoveConfig removes a non-ACTIVE revision.
func (s *Service) RemoveConfig(ctx context.Context, ref element.Ref, id RevisionID) (err error) {
	ctx, end := s.begin(ctx, "remove_config", attribute.String("revision", string(id)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	key, err := s.locate(ctx, el, id)
	if err != nil {
		return err
	}

	var removed Revision
	err = s.update(ctx, key, func(series *Series) error {
		var err error
		removed, err = series.Remove(id)
		return err
	})
	if err != nil {
		return err
	}

	slog.Debug("removed configuration revision", "element", el.Name, "series", key.Name, "revision", id)
	s.emit(ctx, event(audit.EventTypeRevisionRemoved, el, key.Name, s.identity.Creator(ctx)).
		WithRevision(string(id), string(removed.State), removed.ContentType))
	return nil
}

// RemoveConfigRevisions removes every non-ACTIVE revision of a series and
// returns how many were removed. A missing series removes nothing.
func (s *Service) RemoveConfigRevisions(ctx context.Context, ref element.Ref, name SeriesName) (_ int, err error) {
	ctx, end := s.begin(ctx, "remove_config_revisions", attribute.String("series", string(name)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.update(ctx, SeriesKey{ElementID: el.ID, Name: name}, func(series *Series) error {
		n = series.RemoveRevisions()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		slog.Debug("removed configuration revisions", "element", el.Name, "series", name, "count", n)
		s.emit(ctx, event(audit.EventTypeRevisionsRemoved, el, name, s.identity.Creator(ctx)).WithCount(n))
	}
	return n, nil
}

// RestoreConfig copies the content of a revision into a new CANDIDATE.
func (s *Service) RestoreConfig(ctx context.Context, ref element.Ref, id RevisionID, comment string) (_ StoreResult, err error) {
	ctx, end := s.begin(ctx, "restore_config", attribute.String("revision", string(id)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return StoreResult{}, err
	}
	key, err := s.locate(ctx, el, id)
	if err != nil {
		return StoreResult{}, err
	}
	creator := s.identity.Creator(ctx)

	var res StoreResult
	err = s.update(ctx, key, func(series *Series) error {
		var err error
		res, err = series.Restore(id, comment, creator)
		return err
	})
	if err != nil {
		return StoreResult{}, err
	}

	s.metrics.recordStore(StateCandidate, res.Created)
	slog.Debug("restored configuration",
		"element", el.Name, "series", key.Name, "source", id, "revision", res.Revision.ID, "created", res.Created)
	s.emit(ctx, event(audit.EventTypeStored, el, key.Name, creator).
		WithRevision(string(res.Revision.ID), string(res.Revision.State), res.Revision.ContentType).
		WithCreated(res.Created))
	return res, nil
}

// SetComment replaces the comment of a revision in any state.
func (s *Service) SetComment(ctx context.Context, ref element.Ref, id RevisionID, comment string) (_ Revision, err error) {
	ctx, end := s.begin(ctx, "set_comment", attribute.String("revision", string(id)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return Revision{}, err
	}
	key, err := s.locate(ctx, el, id)
	if err != nil {
		return Revision{}, err
	}

	var updated Revision
	err = s.update(ctx, key, func(series *Series) error {
		var err error
		updated, err = series.SetComment(id, comment)
		return err
	})
	if err != nil {
		return Revision{}, err
	}

	s.emit(ctx, event(audit.EventTypeCommentUpdated, el, key.Name, s.identity.Creator(ctx)).
		WithRevision(string(id), string(updated.State), updated.ContentType))
	return updated, nil
}

// PurgeOutdatedConfigs removes the outdated revisions of a series according
// to the history limit of its name and returns how many were removed.
func (s *Service) PurgeOutdatedConfigs(ctx context.Context, ref element.Ref, name SeriesName) (_ int, err error) {
	ctx, end := s.begin(ctx, "purge_outdated_configs", attribute.String("series", string(name)))
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	limit := s.limits.HistoryLimit(name)

	var n int
	err = s.update(ctx, SeriesKey{ElementID: el.ID, Name: name}, func(series *Series) error {
		var err error
		n, err = series.Purge(limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.recordPurged(n)
	if n > 0 {
		slog.Debug("purged outdated configurations", "element", el.Name, "series", name, "limit", limit, "count", n)
		s.emit(ctx, event(audit.EventTypePurged, el, name, s.identity.Creator(ctx)).WithCount(n))
	}
	return n, nil
}

// ForceRemoveElementConfigs removes every revision of every series of the
// element, ACTIVE ones included. It is meant for element deletion.
func (s *Service) ForceRemoveElementConfigs(ctx context.Context, ref element.Ref) (_ int, err error) {
	ctx, end := s.begin(ctx, "force_remove_element_configs")
	defer end(&err)

	el, err := s.resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	names, err := s.repo.SeriesNames(ctx, el.ID)
	if err != nil {
		return 0, fmt.Errorf("listing series of %s: %w", el.Name, err)
	}

	var total int
	for _, name := range names {
		var n int
		err = s.update(ctx, SeriesKey{ElementID: el.ID, Name: name}, func(series *Series) error {
			n = series.ForceRemove()
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("removing series %s: %w", name, err)
		}
		total += n
	}

	slog.Info("removed all element configurations", "element", el.Name, "series", len(names), "count", total)
	s.emit(ctx, event(audit.EventTypeElementConfigsRemoved, el, "", s.identity.Creator(ctx)).WithCount(total))
	return total, nil
}
