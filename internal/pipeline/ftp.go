package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"golang.org/x/time/rate"

	"seriesd/internal/config"
	"seriesd/internal/item"
	"seriesd/internal/logging"
	"seriesd/internal/series"
)

// Conn is the subset of an FTP session the pipeline uses.
type Conn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Quit() error
}

// Dialer opens an FTP session to addr.
type Dialer func(ctx context.Context, addr string, timeout time.Duration) (Conn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ftpTarget is shared by every ftp series; the limiter caps uploads across
// all of them.
type ftpTarget struct {
	addr      string
	user      string
	password  string
	remoteDir string
	timeout   time.Duration
	limiter   *rate.Limiter
	dial      Dialer
}

func newFTPTarget(cfg *config.Config, dial Dialer) *ftpTarget {
	if dial == nil {
		dial = dialFTP
	}
	limit := rate.Inf
	burst := 0
	if cfg.FTP.UploadsPerSecond > 0 {
		limit = rate.Limit(cfg.FTP.UploadsPerSecond)
		burst = cfg.FTP.Burst
	}
	return &ftpTarget{
		addr:      cfg.FTPAddress(),
		user:      cfg.FTP.User,
		password:  cfg.FTP.Password,
		remoteDir: cfg.FTP.RemoteDir,
		timeout:   cfg.FTPTimeout(),
		limiter:   rate.NewLimiter(limit, burst),
		dial:      dial,
	}
}

type ftpHandler struct {
	target *ftpTarget
	name   string
	logger *slog.Logger
	conn   Conn
	tally  tally
}

func newFTPHandler(target *ftpTarget, key string, logger *slog.Logger) *ftpHandler {
	return &ftpHandler{target: target, name: item.SafeName(key), logger: logger}
}

func (h *ftpHandler) workDir() string { return "." + h.name }

func (h *ftpHandler) OnStart(ctx context.Context) error {
	h.logger.Debug("connecting to ftp server", logging.String("addr", h.target.addr))
	conn, err := h.target.dial(ctx, h.target.addr, h.target.timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", h.target.addr, err)
	}
	if err := conn.Login(h.target.user, h.target.password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("login as %s: %w", h.target.user, err)
	}
	if h.target.remoteDir != "" {
		if err := conn.ChangeDir(h.target.remoteDir); err != nil {
			_ = conn.Quit()
			return fmt.Errorf("change to %s: %w", h.target.remoteDir, err)
		}
	}
	if err := conn.MakeDir(h.workDir()); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("create remote %s: %w", h.workDir(), err)
	}
	if err := conn.ChangeDir(h.workDir()); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("change to remote %s: %w", h.workDir(), err)
	}
	h.conn = conn
	h.logger.Info("ready to upload series",
		logging.String("addr", h.target.addr),
		logging.String("remote_dir", h.workDir()),
	)
	return nil
}

func (h *ftpHandler) OnHandle(ctx context.Context, it item.Item) error {
	if err := h.target.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for upload slot: %w", err)
	}
	f, err := os.Open(it.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", it.Path, err)
	}
	defer f.Close()

	base := filepath.Base(it.Path)
	if err := h.conn.Stor(base, f); err != nil {
		if connectionLost(err) {
			return fmt.Errorf("upload %s: %w: %w", base, series.ErrTerminateSeries, err)
		}
		return fmt.Errorf("upload %s: %w", base, err)
	}
	h.tally.add(it)
	h.logger.Debug("uploaded series item", logging.String(logging.FieldPath, it.Path))
	return nil
}

func (h *ftpHandler) OnFinish(context.Context) error {
	if h.conn == nil {
		return nil
	}
	defer func() {
		if err := h.conn.Quit(); err != nil {
			h.logger.Debug("ftp quit failed", logging.Error(err))
		}
	}()
	if err := h.conn.ChangeDir(".."); err != nil {
		return fmt.Errorf("leave remote %s: %w", h.workDir(), err)
	}
	if err := h.conn.Rename(h.workDir(), h.name); err != nil {
		return fmt.Errorf("publish remote %s: %w", h.name, err)
	}
	h.logger.Info("published remote series", append(h.tally.attrs(), logging.String("remote_dir", h.name))...)
	return nil
}

// connectionLost reports errors after which the session cannot be reused.
func connectionLost(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code == ftp.StatusNotAvailable
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
