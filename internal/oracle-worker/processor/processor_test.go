package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/events"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/oracleapi"
)

type fakeRevealer struct {
	notYet int // quantas chamadas devolvem ErrNotRevealed antes da revelação
	err    error
	calls  int
}

func (f *fakeRevealer) FetchRevelation(_ context.Context, handle string) (oracle.Revelation, error) {
	f.calls++
	if f.err != nil {
		return oracle.Revelation{}, f.err
	}
	if f.calls <= f.notYet {
		return oracle.Revelation{}, oracle.ErrNotRevealed
	}
	return oracle.Revelation{Handle: handle, ProviderRandom: common.HexToHash("0xabc")}, nil
}

type fakeResolver struct {
	errs []error
	got  []oracle.Revelation
}

func (f *fakeResolver) Resolve(_ context.Context, rev oracle.Revelation) error {
	f.got = append(f.got, rev)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func placed(t *testing.T, handle string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(events.WagerPlaced{
		Header: events.Header{EventID: "e1", Type: events.TypeWagerPlaced, WagerID: 7},
		Handle: handle,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("7"), Value: b}
}

func newProcessor(rev oracle.Revealer, res Resolver, dlq Writer) (*Processor, map[string]int) {
	counts := map[string]int{}
	return &Processor{
		Log:        zap.NewNop(),
		Revealer:   rev,
		Resolver:   res,
		DLQ:        dlq,
		Retry:      Retry{Attempts: 3, Delay: time.Millisecond},
		OnResolved: func() { counts["resolved"]++ },
		OnSkipped:  func() { counts["skipped"]++ },
		OnDLQ:      func() { counts["dlq"]++ },
		OnError:    func(stage string) { counts["error:"+stage]++ },
	}, counts
}

func TestHandleWaitsForRevelation(t *testing.T) {
	rev := &fakeRevealer{notYet: 2}
	res := &fakeResolver{}
	p, counts := newProcessor(rev, res, &fakeWriter{})

	require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))
	assert.Equal(t, 3, rev.calls)
	require.Len(t, res.got, 1)
	assert.Equal(t, "h1", res.got[0].Handle)
	assert.Equal(t, 1, counts["resolved"])
}

func TestHandleRetriesTransientResolveErrors(t *testing.T) {
	res := &fakeResolver{errs: []error{errors.New("connection refused")}}
	p, counts := newProcessor(&fakeRevealer{}, res, &fakeWriter{})

	require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))
	assert.Len(t, res.got, 2)
	assert.Equal(t, 1, counts["resolved"])
}

func TestHandleSkipsAlreadyResolved(t *testing.T) {
	res := &fakeResolver{errs: []error{ErrAlreadyResolved}}
	dlq := &fakeWriter{}
	p, counts := newProcessor(&fakeRevealer{}, res, dlq)

	require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))
	assert.Len(t, res.got, 1)
	assert.Equal(t, 1, counts["skipped"])
	assert.Empty(t, dlq.msgs)
}

func TestHandleSendsToDLQ(t *testing.T) {
	t.Run("revelation never arrives", func(t *testing.T) {
		dlq := &fakeWriter{}
		rev := &fakeRevealer{notYet: 100}
		p, counts := newProcessor(rev, &fakeResolver{}, dlq)

		require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))
		assert.Equal(t, 3, rev.calls)
		require.Len(t, dlq.msgs, 1)
		assert.Equal(t, "7", string(dlq.msgs[0].Key))
		assert.Equal(t, "fetch", string(dlq.msgs[0].Headers[0].Value))
		assert.Equal(t, 1, counts["dlq"])
	})

	t.Run("unknown handle is not retried", func(t *testing.T) {
		dlq := &fakeWriter{}
		rev := &fakeRevealer{err: oracle.ErrUnknownHandle}
		p, _ := newProcessor(rev, &fakeResolver{}, dlq)

		require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))
		assert.Equal(t, 1, rev.calls)
		assert.Len(t, dlq.msgs, 1)
	})

	t.Run("rejected resolve", func(t *testing.T) {
		dlq := &fakeWriter{}
		res := &fakeResolver{errs: []error{ErrRejected}}
		p, counts := newProcessor(&fakeRevealer{}, res, dlq)

		require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))
		assert.Len(t, res.got, 1)
		assert.Len(t, dlq.msgs, 1)
		assert.Equal(t, 1, counts["error:resolve"])
	})

	t.Run("garbage payload", func(t *testing.T) {
		dlq := &fakeWriter{}
		p, counts := newProcessor(&fakeRevealer{}, &fakeResolver{}, dlq)

		require.NoError(t, p.Handle(context.Background(), kafka.Message{Value: []byte("{")}))
		assert.Len(t, dlq.msgs, 1)
		assert.Equal(t, 1, counts["error:decode"])
	})

	t.Run("dlq down keeps offset", func(t *testing.T) {
		p, _ := newProcessor(&fakeRevealer{err: oracle.ErrUnknownHandle}, &fakeResolver{}, &fakeWriter{err: errors.New("broker down")})
		assert.Error(t, p.Handle(context.Background(), placed(t, "h1")))
	})
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func TestRunCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: []kafka.Message{placed(t, "h1"), placed(t, "h2")}, cancel: cancel}
	res := &fakeResolver{}
	p, _ := newProcessor(&fakeRevealer{}, res, nil)
	p.Reader = r

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.got, 2)
	assert.Len(t, r.committed, 2)
}

type mockReader struct{ mock.Mock }

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *mockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

type mockWriter struct{ mock.Mock }

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func TestRunRetriesUntilDLQAccepts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msg := placed(t, "h1")

	r := &mockReader{}
	r.On("FetchMessage", mock.Anything).Return(msg, nil).Once()
	r.On("FetchMessage", mock.Anything).Return(kafka.Message{}, context.Canceled).Run(func(mock.Arguments) { cancel() })
	r.On("CommitMessages", mock.Anything, []kafka.Message{msg}).Return(nil).Once()

	dlq := &mockWriter{}
	dlq.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	dlq.On("WriteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	p, counts := newProcessor(&fakeRevealer{err: oracle.ErrUnknownHandle}, &fakeResolver{}, dlq)
	p.Reader = r

	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	r.AssertExpectations(t)
	dlq.AssertExpectations(t)
	assert.Equal(t, 1, counts["dlq"])
}

func TestHTTPResolverMapsStatuses(t *testing.T) {
	status := http.StatusOK
	kind, reason := "", ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			httpx.WriteErrorReason(w, status, kind, reason, "nope")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": 1, "state": "SETTLED"})
	}))
	t.Cleanup(srv.Close)
	res := NewHTTPResolver(srv.URL)
	rev := oracle.Revelation{Handle: "h1", ProviderRandom: common.HexToHash("0x01")}

	assert.NoError(t, res.Resolve(context.Background(), rev))

	status, kind, reason = http.StatusConflict, "idempotency", oracleapi.ReasonNotPending
	assert.ErrorIs(t, res.Resolve(context.Background(), rev), ErrAlreadyResolved)

	// prova inválida e handle desconhecido vão para a DLQ
	for _, r := range []string{oracleapi.ReasonBadRevelation, oracleapi.ReasonUnknownHandle} {
		reason = r
		err := res.Resolve(context.Background(), rev)
		assert.ErrorIs(t, err, ErrRejected, r)
		assert.NotErrorIs(t, err, ErrAlreadyResolved, r)
	}

	status, kind, reason = http.StatusBadRequest, "validation", ""
	assert.ErrorIs(t, res.Resolve(context.Background(), rev), ErrRejected)

	status, kind = http.StatusServiceUnavailable, "unavailable"
	err := res.Resolve(context.Background(), rev)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestHandleSendsBadRevelationToDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteErrorReason(w, http.StatusConflict, "idempotency", oracleapi.ReasonBadRevelation, "resolve: revelation does not match provider commitment")
	}))
	t.Cleanup(srv.Close)

	dlq := &fakeWriter{}
	p, counts := newProcessor(&fakeRevealer{}, NewHTTPResolver(srv.URL), dlq)
	require.NoError(t, p.Handle(context.Background(), placed(t, "h1")))

	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, 1, counts["dlq"])
	assert.Zero(t, counts["skipped"])
}
