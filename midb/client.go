package midb

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/pkg/metrics"
	"github.com/rovermail/rover/seqset"
)

// PoolConfig sizes the connection pool toward the index service.
type PoolConfig struct {
	Network        string
	Address        string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	PoolSize       int
}

// Pool is the wire implementation of Client. It keeps a bounded set of
// line-protocol connections to the index service and checks one out
// per call.
//
// The protocol is request/response: one space-separated command line
// out, one `TRUE ...` or `FALSE <code> [text]` status line back. List
// results follow a `TRUE <n>` line as n payload lines.
type Pool struct {
	cfg  PoolConfig
	idle chan *poolConn
	slot chan struct{}
}

type poolConn struct {
	nc net.Conn
	br *bufio.Reader
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	return &Pool{
		cfg:  cfg,
		idle: make(chan *poolConn, cfg.PoolSize),
		slot: make(chan struct{}, cfg.PoolSize),
	}
}

// Close drops all idle connections. In-flight calls finish on their
// own connections.
func (p *Pool) Close() {
	for {
		select {
		case pc := <-p.idle:
			pc.nc.Close()
		default:
			return
		}
	}
}

func (p *Pool) acquire(ctx context.Context) (*poolConn, error) {
	select {
	case pc := <-p.idle:
		return pc, nil
	default:
	}
	select {
	case pc := <-p.idle:
		return pc, nil
	case p.slot <- struct{}{}:
		d := net.Dialer{Timeout: p.cfg.ConnectTimeout}
		nc, err := d.DialContext(ctx, p.cfg.Network, p.cfg.Address)
		if err != nil {
			<-p.slot
			return nil, fmt.Errorf("%w: %v", ErrNoServer, err)
		}
		return &poolConn{nc: nc, br: bufio.NewReader(nc)}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoServer, ctx.Err())
	}
}

func (p *Pool) release(pc *poolConn, broken bool) {
	if broken {
		pc.nc.Close()
		select {
		case <-p.slot:
		default:
		}
		return
	}
	select {
	case p.idle <- pc:
	default:
		pc.nc.Close()
		select {
		case <-p.slot:
		default:
		}
	}
}

// exchange sends one command and returns the status line fields after
// TRUE, plus the connection for callers that read payload lines.
func (p *Pool) exchange(ctx context.Context, pc *poolConn, args ...string) (fields []string, err error) {
	started := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.BackendCallsTotal.WithLabelValues(args[0], status).Inc()
		metrics.BackendCallDuration.WithLabelValues(args[0]).Observe(time.Since(started).Seconds())
	}()

	deadline := time.Now().Add(p.cfg.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := pc.nc.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadWrite, err)
	}
	line := strings.Join(args, " ") + "\r\n"
	if _, err := pc.nc.Write([]byte(line)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadWrite, err)
	}
	status, err := pc.br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadWrite, err)
	}
	fields = strings.Fields(status)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty status", ErrReadWrite)
	}
	switch fields[0] {
	case "TRUE":
		return fields[1:], nil
	case "FALSE":
		code := 0
		if len(fields) > 1 {
			code, _ = strconv.Atoi(fields[1])
		}
		text := ""
		if len(fields) > 2 {
			text = strings.Join(fields[2:], " ")
		}
		return nil, &Error{Code: code, Text: text}
	default:
		return nil, fmt.Errorf("%w: bad status %q", ErrReadWrite, fields[0])
	}
}

// call runs one command whose result fits on the status line.
func (p *Pool) call(ctx context.Context, args ...string) ([]string, error) {
	pc, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := p.exchange(ctx, pc, args...)
	p.release(pc, err != nil && IsTransport(err))
	return fields, err
}

// callList runs one command answered by `TRUE <n>` plus n lines.
func (p *Pool) callList(ctx context.Context, args ...string) ([]string, error) {
	pc, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := p.exchange(ctx, pc, args...)
	if err != nil {
		p.release(pc, IsTransport(err))
		return nil, err
	}
	if len(fields) == 0 {
		p.release(pc, true)
		return nil, fmt.Errorf("%w: missing list count", ErrReadWrite)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		p.release(pc, true)
		return nil, fmt.Errorf("%w: bad list count %q", ErrReadWrite, fields[0])
	}
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := pc.br.ReadString('\n')
		if err != nil {
			p.release(pc, true)
			return nil, fmt.Errorf("%w: %v", ErrReadWrite, err)
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	p.release(pc, false)
	return lines, nil
}

func (p *Pool) EnumFolders(ctx context.Context, maildir string) ([]string, error) {
	return p.callList(ctx, "M-ENUM", maildir)
}

func (p *Pool) EnumSubscriptions(ctx context.Context, maildir string) ([]string, error) {
	return p.callList(ctx, "M-SUBL", maildir)
}

func (p *Pool) SummaryFolder(ctx context.Context, maildir, folder string) (Summary, error) {
	fields, err := p.call(ctx, "M-SUMY", maildir, folder)
	if err != nil {
		return Summary{}, err
	}
	if len(fields) < 5 {
		return Summary{}, fmt.Errorf("%w: short summary", ErrReadWrite)
	}
	var vals [5]uint32
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 32)
		if err != nil {
			return Summary{}, fmt.Errorf("%w: bad summary field %q", ErrReadWrite, fields[i])
		}
		vals[i] = uint32(v)
	}
	return Summary{
		Exists:      vals[0],
		Recent:      vals[1],
		Unseen:      vals[2],
		UIDValidity: vals[3],
		UIDNext:     vals[4],
	}, nil
}

func (p *Pool) MakeFolder(ctx context.Context, maildir, folder string) error {
	_, err := p.call(ctx, "M-MAKF", maildir, folder)
	return err
}

func (p *Pool) RemoveFolder(ctx context.Context, maildir, folder string) error {
	_, err := p.call(ctx, "M-REMF", maildir, folder)
	return err
}

func (p *Pool) RenameFolder(ctx context.Context, maildir, from, to string) error {
	_, err := p.call(ctx, "M-RENF", maildir, from, to)
	return err
}

func (p *Pool) SubscribeFolder(ctx context.Context, maildir, folder string) error {
	_, err := p.call(ctx, "M-SUBF", maildir, folder)
	return err
}

func (p *Pool) UnsubscribeFolder(ctx context.Context, maildir, folder string) error {
	_, err := p.call(ctx, "M-UNSF", maildir, folder)
	return err
}

func parseItems(lines []string) ([]Item, error) {
	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: bad item line %q", ErrReadWrite, line)
		}
		uid, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad uid %q", ErrReadWrite, fields[0])
		}
		it := Item{UID: imap.UID(uid), MID: fields[1]}
		if len(fields) > 2 {
			it.Flags = ParseStoreFlags(fields[2])
		}
		items = append(items, it)
	}
	return items, nil
}

func (p *Pool) FetchSimpleUID(ctx context.Context, maildir, folder string, ranges seqset.List) ([]Item, error) {
	lines, err := p.callList(ctx, "P-SIMU", maildir, folder, ranges.String())
	if err != nil {
		return nil, err
	}
	return parseItems(lines)
}

func (p *Pool) FetchDetailUID(ctx context.Context, maildir, folder string, ranges seqset.List) ([]Item, error) {
	lines, err := p.callList(ctx, "P-DTLU", maildir, folder, ranges.String())
	if err != nil {
		return nil, err
	}
	return parseItems(lines)
}

func (p *Pool) ListDeleted(ctx context.Context, maildir, folder string) ([]Item, error) {
	lines, err := p.callList(ctx, "P-DELL", maildir, folder)
	if err != nil {
		return nil, err
	}
	return parseItems(lines)
}

func (p *Pool) RemoveMail(ctx context.Context, maildir, folder string, mids []string) error {
	args := append([]string{"M-DELE", maildir, folder}, mids...)
	_, err := p.call(ctx, args...)
	return err
}

func (p *Pool) CopyMail(ctx context.Context, maildir, srcFolder, srcMID, dstFolder, dstMID string) error {
	_, err := p.call(ctx, "M-COPY", maildir, srcFolder, srcMID, dstFolder, dstMID)
	return err
}

func (p *Pool) InsertMail(ctx context.Context, maildir, folder, mid, flagString string, received time.Time) error {
	_, err := p.call(ctx, "M-INST", maildir, folder, mid, flagString,
		strconv.FormatInt(received.Unix(), 10))
	return err
}

func (p *Pool) GetFlags(ctx context.Context, maildir, folder, mid string) (FlagBits, error) {
	fields, err := p.call(ctx, "P-GFLG", maildir, folder, mid)
	if err != nil {
		return 0, err
	}
	if len(fields) < 1 {
		return 0, fmt.Errorf("%w: missing flags", ErrReadWrite)
	}
	return ParseStoreFlags(fields[0]), nil
}

func (p *Pool) SetFlags(ctx context.Context, maildir, folder, mid string, flags FlagBits) error {
	_, err := p.call(ctx, "P-SFLG", maildir, folder, mid, flags.StoreString())
	return err
}

func (p *Pool) UnsetFlags(ctx context.Context, maildir, folder, mid string, flags FlagBits) error {
	_, err := p.call(ctx, "P-RFLG", maildir, folder, mid, flags.StoreString())
	return err
}

func (p *Pool) GetUID(ctx context.Context, maildir, folder, mid string) (imap.UID, error) {
	fields, err := p.call(ctx, "P-UNID", maildir, folder, mid)
	if err != nil {
		return 0, err
	}
	if len(fields) < 1 {
		return 0, fmt.Errorf("%w: missing uid", ErrReadWrite)
	}
	uid, perr := strconv.ParseUint(fields[0], 10, 32)
	if perr != nil {
		return 0, fmt.Errorf("%w: bad uid %q", ErrReadWrite, fields[0])
	}
	return imap.UID(uid), nil
}

func (p *Pool) Search(ctx context.Context, maildir, folder, charset string, criteria []string) (string, error) {
	args := append([]string{"P-SRHL", maildir, folder, charset}, criteria...)
	fields, err := p.call(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.Join(fields, " "), nil
}

func (p *Pool) SearchUID(ctx context.Context, maildir, folder, charset string, criteria []string) (string, error) {
	args := append([]string{"P-SRHU", maildir, folder, charset}, criteria...)
	fields, err := p.call(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.Join(fields, " "), nil
}

var _ Client = (*Pool)(nil)
