package filter

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/ganwell/git-fastcdc-go/pkg/chunker"
	"github.com/ganwell/git-fastcdc-go/pkg/manifest"
)

// handleCleanBuffered implements clean-regular (buffered): read the whole
// payload into memory, acknowledge, then chunk it and emit one
// "<hash>.cdc\n" line per chunk as the response (§4.4, §4.5).
func (s *Session) handleCleanBuffered() (bool, error) {
	var buf bytes.Buffer
	for {
		pkt, err := s.ch.ReadPacket()
		if err != nil {
			return false, err
		}
		if len(pkt) == 0 {
			break
		}
		buf.Write(pkt)
	}

	if err := s.writeStatusSuccess(); err != nil {
		return false, err
	}

	anyNew, err := s.chunkAndEmit(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return anyNew, err
	}
	return anyNew, s.finishResponse()
}

// handleCleanOnDisk implements clean-regular (on-disk): spill the payload to
// a temp file as packets arrive, instead of buffering the whole file in
// memory, then chunk straight from the file.
func (s *Session) handleCleanOnDisk() (bool, error) {
	f, err := os.Create(tmpFileName)
	if err != nil {
		return false, filesystemErr("create spill file "+tmpFileName, err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpFileName)
	}()

	for {
		pkt, err := s.ch.ReadPacket()
		if err != nil {
			return false, err
		}
		if len(pkt) == 0 {
			break
		}
		if _, err := f.Write(pkt); err != nil {
			return false, filesystemErr("write spill file "+tmpFileName, err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		return false, filesystemErr("stat spill file "+tmpFileName, err)
	}

	if err := s.writeStatusSuccess(); err != nil {
		return false, err
	}

	if _, err := f.Seek(0, 0); err != nil {
		return false, filesystemErr("rewind spill file "+tmpFileName, err)
	}

	anyNew, err := s.chunkAndEmit(f, info.Size())
	if err != nil {
		return anyNew, err
	}
	return anyNew, s.finishResponse()
}

// chunkAndEmit runs the chunker over r and writes one "<hash>.cdc\n" text
// packet per chunk, storing each chunk's bytes through the gateway and
// materializing its manifest entry in the chunk store.
func (s *Session) chunkAndEmit(r io.Reader, size int64) (bool, error) {
	avg := chunker.AdaptiveAverageSize(size)
	anyNew := false

	err := chunker.Chunk(r, avg, func(_ chunker.Span, data []byte) error {
		hash, err := s.gw.StoreBytes(data)
		if err != nil {
			return objectStoreErr("store chunk", err)
		}
		created, err := s.store.Materialize(hash)
		if err != nil {
			return filesystemErr("materialize chunk manifest for "+hash, err)
		}
		if created {
			anyNew = true
		}
		return s.ch.WritePacketText(manifest.ChunkFilename(hash) + "\n")
	})
	return anyNew, err
}

// handleCleanChunkManifest implements clean-chunk-manifest: the payload is
// exactly one hash line, already computed by a previous clean; re-fetch and
// re-emit those bytes verbatim so `git show`/diff keep working on chunk
// files the same way they do on any other blob (§4.5).
func (s *Session) handleCleanChunkManifest() error {
	hash, err := s.ch.ReadPacketText()
	if err != nil {
		return err
	}
	terminator, err := s.ch.ReadPacketText()
	if err != nil {
		return err
	}
	if terminator != "" {
		return protocolErrf("expected empty terminator after chunk-manifest hash, got %q", terminator)
	}

	if err := s.writeStatusSuccess(); err != nil {
		return err
	}

	data, err := s.gw.FetchBytes(hash)
	if err != nil {
		return objectStoreErr("fetch chunk "+hash, err)
	}
	if err := s.ch.WritePacketChunks(data); err != nil {
		return err
	}
	return s.finishResponse()
}

// handlePassthrough implements the catch-all for paths under the chunkroot
// that are not themselves chunk-manifest files (e.g. directory placeholders):
// echo the payload back unchanged, preserving its original packet
// boundaries (§4.5, Open Question resolved in favor of exact boundaries).
func (s *Session) handlePassthrough() error {
	var packets [][]byte
	for {
		pkt, err := s.ch.ReadPacket()
		if err != nil {
			return err
		}
		if len(pkt) == 0 {
			break
		}
		packets = append(packets, pkt)
	}

	if err := s.writeStatusSuccess(); err != nil {
		return err
	}
	for _, pkt := range packets {
		if err := s.ch.WritePacket(pkt); err != nil {
			return err
		}
	}
	return s.finishResponse()
}

// handleSmudgeChunkManifest implements smudge-chunk-manifest: the checked-out
// content of a chunk-manifest file is just its own hash, so the response is
// the pathname's stem, independent of payload (§4.5). The blob header must
// agree with the pathname's stem, or the working tree and object store have
// diverged and continuing would silently serve the wrong bytes.
func (s *Session) handleSmudgeChunkManifest(path, blob string) error {
	if err := s.drainPayload(); err != nil {
		return err
	}
	if err := s.writeStatusSuccess(); err != nil {
		return err
	}

	stem := manifest.StemOf(filepath.Base(path))
	if stem != blob {
		return consistencyErrf("chunk-manifest %q stem %q does not match blob header %q", path, stem, blob)
	}

	if err := s.ch.WritePacketText(stem); err != nil {
		return err
	}
	return s.finishResponse()
}

// handleSmudgeRegular implements smudge-regular: the payload is a user blob
// manifest (one "<hash>.cdc" line per chunk); fetch each chunk in order and
// stream it back, reassembling the original file (§4.5).
func (s *Session) handleSmudgeRegular() error {
	var buf bytes.Buffer
	for {
		pkt, err := s.ch.ReadPacket()
		if err != nil {
			return err
		}
		if len(pkt) == 0 {
			break
		}
		buf.Write(pkt)
	}

	if err := s.writeStatusSuccess(); err != nil {
		return err
	}

	m := manifest.ParseUserBlobManifest(buf.String())
	for _, hash := range m.Hashes {
		data, err := s.gw.FetchBytes(hash)
		if err != nil {
			return objectStoreErr("fetch chunk "+hash, err)
		}
		if err := s.ch.WritePacketChunks(data); err != nil {
			return err
		}
	}
	return s.finishResponse()
}
