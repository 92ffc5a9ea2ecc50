// Package filter implements the clean/smudge session state machine described
// in §4.5: the handshake, the request loop, and the five request handlers
// that route on command and pathname.
package filter

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ganwell/git-fastcdc-go/pkg/chunkstore"
	"github.com/ganwell/git-fastcdc-go/pkg/gitgw"
	"github.com/ganwell/git-fastcdc-go/pkg/packet"
)

// Config holds the session-scoped choices that the original tool instead
// read from a memoized global: whether large regular files are cleaned by
// spilling to a temp file on disk rather than buffering in memory.
type Config struct {
	OnDisk bool
}

// tmpFileName is the on-disk clean path's spill file, created and removed in
// the repository root for the lifetime of a single request.
const tmpFileName = ".fast_cdc_tmp_file_29310b6"

// Session owns one long-running filter conversation: one Gateway, one
// chunkstore.Store, one Config, constructed fresh per process invocation. It
// carries no package-level state, per Design Notes' guidance against the
// original tool's memoized globals.
type Session struct {
	ch    *packet.Channel
	gw    gitgw.Gateway
	store *chunkstore.Store
	cfg   Config
	log   logrus.FieldLogger

	anyNewChunk bool
}

// NewSession constructs a Session over an already-open packet Channel.
func NewSession(ch *packet.Channel, gw gitgw.Gateway, store *chunkstore.Store, cfg Config, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{ch: ch, gw: gw, store: store, cfg: cfg, log: log}
}

// Run performs the handshake, services requests until the host sends an
// empty command, and stages the chunkroot if any new chunk was written
// during the conversation. Any returned error is fatal: the caller should
// exit non-zero without attempting to continue the conversation (§7).
func (s *Session) Run() error {
	if err := s.handshake(); err != nil {
		return err
	}
	if err := s.requestLoop(); err != nil {
		return err
	}
	if s.anyNewChunk && s.store.Exists() {
		if err := s.gw.StagePaths(s.store.Root); err != nil {
			return objectStoreErr("stage chunkroot "+s.store.Root, err)
		}
	}
	return nil
}

// handshake performs the exact exchange in §4.5 steps 1-6: verify the
// client's welcome and version, announce ours, verify the client requires
// "clean" and "smudge", and announce that we support exactly those two.
func (s *Session) handshake() error {
	welcome, err := s.ch.ReadPacketText()
	if err != nil {
		return err
	}
	if welcome != "git-filter-client" {
		return protocolErrf("unexpected handshake welcome %q", welcome)
	}

	version, err := s.ch.ReadPacketText()
	if err != nil {
		return err
	}
	if version != "version=2" {
		return protocolErrf("unsupported client version %q", version)
	}

	if err := s.ch.WritePacketText("git-filter-server\n"); err != nil {
		return err
	}
	if err := s.ch.WritePacketText("version=2\n"); err != nil {
		return err
	}
	if err := s.ch.WriteFlush(); err != nil {
		return err
	}

	terminator, err := s.ch.ReadPacketText()
	if err != nil {
		return err
	}
	if terminator != "" {
		return protocolErrf("expected empty packet after version negotiation, got %q", terminator)
	}

	caps := map[string]bool{}
	for {
		line, err := s.ch.ReadPacketText()
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		key, _, value := strings.Cut(line, "=")
		if key != "capability" {
			return protocolErrf("expected capability declaration, got %q", line)
		}
		caps[value] = true
	}
	if !caps["clean"] || !caps["smudge"] {
		return protocolErrf("client did not declare required capabilities clean and smudge")
	}

	if err := s.ch.WritePacketText("capability=clean\n"); err != nil {
		return err
	}
	if err := s.ch.WritePacketText("capability=smudge\n"); err != nil {
		return err
	}
	return s.ch.WriteFlush()
}

// requestLoop reads one request per iteration until the host sends an empty
// packet in place of a command line, per §4.5 step 3 and the termination
// condition in §8.
func (s *Session) requestLoop() error {
	for {
		commandLine, err := s.ch.ReadPacketText()
		if err != nil {
			return err
		}
		if commandLine == "" {
			return nil
		}
		key, _, op := strings.Cut(commandLine, "=")
		if key != "command" {
			return protocolErrf("expected command=..., got %q", commandLine)
		}

		pathLine, err := s.ch.ReadPacketText()
		if err != nil {
			return err
		}
		pathKey, _, path := strings.Cut(pathLine, "=")
		if pathKey != "pathname" {
			return protocolErrf("expected pathname=..., got %q", pathLine)
		}
		if path == "" {
			return protocolErrf("empty pathname in %q request", op)
		}

		headers := map[string]string{}
		for {
			line, err := s.ch.ReadPacketText()
			if err != nil {
				return err
			}
			if line == "" {
				break
			}
			hk, _, hv := strings.Cut(line, "=")
			switch hk {
			case "treeish", "ref", "blob":
				headers[hk] = hv
			default:
				s.log.WithField("key", hk).WithField("pathname", path).
					Debug("ignoring unrecognized filter request header")
			}
		}

		newChunk, err := s.dispatch(op, path, headers)
		if err != nil {
			return err
		}
		if newChunk {
			s.anyNewChunk = true
		}
	}
}

// dispatch implements the routing table in §4.5: command and the .cdc/ path
// prefix and suffix together select exactly one handler.
func (s *Session) dispatch(op, path string, headers map[string]string) (bool, error) {
	underChunkroot := strings.HasPrefix(path, s.store.Root+"/")

	switch op {
	case "clean":
		if underChunkroot {
			if strings.HasSuffix(path, chunkstore.Suffix) {
				return false, s.handleCleanChunkManifest()
			}
			return false, s.handlePassthrough()
		}
		if s.cfg.OnDisk {
			return s.handleCleanOnDisk()
		}
		return s.handleCleanBuffered()

	case "smudge":
		if underChunkroot {
			return false, s.handleSmudgeChunkManifest(path, headers["blob"])
		}
		return false, s.handleSmudgeRegular()

	default:
		return false, protocolErrf("unknown command %q", op)
	}
}

// writeStatusSuccess writes the status line required before every response,
// per §4.5 step 6: every request this tool accepts eventually succeeds or
// the session ends in a fatal, unrecovered error.
func (s *Session) writeStatusSuccess() error {
	if err := s.ch.WritePacketText("status=success\n"); err != nil {
		return err
	}
	return s.ch.WriteFlush()
}

// finishResponse writes the two trailing flushes that close out a response.
func (s *Session) finishResponse() error {
	if err := s.ch.WriteFlush(); err != nil {
		return err
	}
	return s.ch.WriteFlush()
}

// drainPayload reads payload packets until the terminating empty packet,
// discarding their contents. Used by handlers that only need to know the
// payload ended, not what it contained.
func (s *Session) drainPayload() error {
	for {
		pkt, err := s.ch.ReadPacket()
		if err != nil {
			return err
		}
		if len(pkt) == 0 {
			return nil
		}
	}
}
