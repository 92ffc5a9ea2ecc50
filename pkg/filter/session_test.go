package filter

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ganwell/git-fastcdc-go/pkg/chunkstore"
	"github.com/ganwell/git-fastcdc-go/pkg/gitgw"
	"github.com/ganwell/git-fastcdc-go/pkg/manifest"
	"github.com/ganwell/git-fastcdc-go/pkg/packet"
)

// writePkt writes a raw packet (hex length prefix + payload) to buf, the way
// a real host process would.
func writePkt(buf *bytes.Buffer, payload string) {
	fmt.Fprintf(buf, "%04x%s", len(payload)+4, payload)
}

func writeFlush(buf *bytes.Buffer) {
	buf.WriteString("0000")
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func newTestSession(t *testing.T, input *bytes.Buffer, output *bytes.Buffer, onDisk bool) (*Session, *gitgw.FakeGateway) {
	t.Helper()
	dir := t.TempDir()
	ch := packet.NewChannel(input, output)
	gw := gitgw.NewFakeGateway(dir)
	store := chunkstore.New(dir, ".cdc")
	return NewSession(ch, gw, store, Config{OnDisk: onDisk}, testLogger()), gw
}

func writeHandshake(buf *bytes.Buffer) {
	writePkt(buf, "git-filter-client\n")
	writePkt(buf, "version=2\n")
	writeFlush(buf)
	writePkt(buf, "capability=clean\n")
	writePkt(buf, "capability=smudge\n")
	writeFlush(buf)
}

// TestHandshakeOnlyThenTerminate covers scenario 1: a client that completes
// the handshake and immediately ends the conversation.
func TestHandshakeOnlyThenTerminate(t *testing.T) {
	var in bytes.Buffer
	writeHandshake(&in)
	writeFlush(&in) // empty command line ends the request loop

	var out bytes.Buffer
	sess, _ := newTestSession(t, &in, &out, false)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ch := packet.NewChannel(&out, &bytes.Buffer{})
	drainHandshakeResponse(t, ch)

	remaining, err := ch.ReadPacket()
	if err != nil {
		t.Fatalf("reading after handshake: %v", err)
	}
	if remaining != nil {
		t.Errorf("expected end of stream after handshake-only conversation, got %q", remaining)
	}
}

// TestCleanBufferedRoundTrip covers scenario 2: a small file cleaned in
// buffered mode chunks into exactly one span and the chunk can be fetched
// back through the gateway.
func TestCleanBufferedRoundTrip(t *testing.T) {
	var in bytes.Buffer
	writeHandshake(&in)

	content := "hello world, this is a small regular file\n"
	writePkt(&in, "command=clean\n")
	writePkt(&in, "pathname=greeting.txt\n")
	writeFlush(&in) // end of headers
	writePkt(&in, content)
	writeFlush(&in) // end of payload
	writeFlush(&in) // end of request loop

	var out bytes.Buffer
	sess, gw := newTestSession(t, &in, &out, false)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !sess.anyNewChunk {
		t.Error("expected anyNewChunk to be true after cleaning new content")
	}

	ch := packet.NewChannel(&out, &bytes.Buffer{})
	drainHandshakeResponse(t, ch)

	status, err := ch.ReadPacketText()
	if err != nil || status != "status=success" {
		t.Fatalf("status = %q, err %v", status, err)
	}
	flushPkt(t, ch)

	line, err := ch.ReadPacketText()
	if err != nil {
		t.Fatalf("reading manifest line: %v", err)
	}
	if manifest.StemOf(line) == "" {
		t.Fatalf("manifest line %q has no hash stem", line)
	}

	fetched, err := gw.FetchBytes(manifest.StemOf(line))
	if err != nil {
		t.Fatalf("FetchBytes: %v", err)
	}
	if string(fetched) != content {
		t.Errorf("fetched chunk = %q, want %q", fetched, content)
	}
}

// TestCleanOnDiskRoundTrip exercises the on-disk clean path: the temp spill
// file is created relative to the process's working directory (the
// production entrypoint chdir's to repo-root() first), written, chunked,
// and removed on success.
func TestCleanOnDiskRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())

	var in bytes.Buffer
	writeHandshake(&in)

	content := "on-disk clean mode spills the payload to a temp file first\n"
	writePkt(&in, "command=clean\n")
	writePkt(&in, "pathname=big.bin\n")
	writeFlush(&in)
	writePkt(&in, content)
	writeFlush(&in)
	writeFlush(&in)

	var out bytes.Buffer
	sess, gw := newTestSession(t, &in, &out, true)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(tmpFileName); !os.IsNotExist(err) {
		t.Errorf("expected spill file %s to be removed, stat err = %v", tmpFileName, err)
	}

	ch := packet.NewChannel(&out, &bytes.Buffer{})
	drainHandshakeResponse(t, ch)
	status, _ := ch.ReadPacketText()
	if status != "status=success" {
		t.Fatalf("status = %q", status)
	}
	flushPkt(t, ch)

	line, err := ch.ReadPacketText()
	if err != nil {
		t.Fatalf("reading manifest line: %v", err)
	}
	fetched, err := gw.FetchBytes(manifest.StemOf(line))
	if err != nil {
		t.Fatalf("FetchBytes: %v", err)
	}
	if string(fetched) != content {
		t.Errorf("fetched chunk = %q, want %q", fetched, content)
	}
}

// TestCleanChunkManifestEchoesStoredBytes covers scenario 4: cleaning the
// chunk-manifest file itself (under the chunkroot) re-emits the already
// stored bytes for that hash.
func TestCleanChunkManifestEchoesStoredBytes(t *testing.T) {
	var in bytes.Buffer
	writeHandshake(&in)

	var out bytes.Buffer
	sess, gw := newTestSession(t, &in, &out, false)

	hash, err := gw.StoreBytes([]byte("chunk payload"))
	if err != nil {
		t.Fatalf("seed StoreBytes: %v", err)
	}

	writePkt(&in, "command=clean\n")
	writePkt(&in, fmt.Sprintf("pathname=.cdc/%s/%s/%s.cdc\n", hash[0:2], hash[2:4], hash))
	writeFlush(&in)
	writePkt(&in, hash+"\n")
	writeFlush(&in)
	writeFlush(&in)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ch := packet.NewChannel(&out, &bytes.Buffer{})
	drainHandshakeResponse(t, ch)
	status, _ := ch.ReadPacketText()
	if status != "status=success" {
		t.Fatalf("status = %q", status)
	}
	flushPkt(t, ch)

	body, err := ch.ReadPacketText()
	if err != nil {
		t.Fatalf("reading echoed body: %v", err)
	}
	if body != "chunk payload" {
		t.Errorf("echoed body = %q, want %q", body, "chunk payload")
	}
}

// TestSmudgeChunkManifestReturnsStem covers scenario 5: smudging a
// chunk-manifest file returns the pathname's own hash stem regardless of
// payload, as long as it agrees with the blob header.
func TestSmudgeChunkManifestReturnsStem(t *testing.T) {
	hash := "abcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcd"[:64]

	var in bytes.Buffer
	writeHandshake(&in)
	writePkt(&in, "command=smudge\n")
	writePkt(&in, fmt.Sprintf("pathname=.cdc/%s/%s/%s.cdc\n", hash[0:2], hash[2:4], hash))
	writePkt(&in, "blob="+hash+"\n")
	writeFlush(&in)
	writeFlush(&in) // empty payload
	writeFlush(&in) // end of request loop

	var out bytes.Buffer
	sess, _ := newTestSession(t, &in, &out, false)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ch := packet.NewChannel(&out, &bytes.Buffer{})
	drainHandshakeResponse(t, ch)
	status, _ := ch.ReadPacketText()
	if status != "status=success" {
		t.Fatalf("status = %q", status)
	}
	flushPkt(t, ch)

	body, err := ch.ReadPacketText()
	if err != nil {
		t.Fatalf("reading stem: %v", err)
	}
	if body != hash {
		t.Errorf("smudged body = %q, want %q", body, hash)
	}
}

// TestSmudgeChunkManifestRejectsBlobMismatch exercises the consistency
// assertion: a blob header disagreeing with the pathname's stem is fatal.
func TestSmudgeChunkManifestRejectsBlobMismatch(t *testing.T) {
	hash := "000000000000000000000000000000000000000000000000000000000000000a"[:64]
	otherHash := "111111111111111111111111111111111111111111111111111111111111111b"[:64]

	var in bytes.Buffer
	writeHandshake(&in)
	writePkt(&in, "command=smudge\n")
	writePkt(&in, fmt.Sprintf("pathname=.cdc/%s/%s/%s.cdc\n", hash[0:2], hash[2:4], hash))
	writePkt(&in, "blob="+otherHash+"\n")
	writeFlush(&in)
	writeFlush(&in)
	writeFlush(&in)

	var out bytes.Buffer
	sess, _ := newTestSession(t, &in, &out, false)

	err := sess.Run()
	if err == nil {
		t.Fatal("expected a consistency error, got nil")
	}
	var ferr *FilterError
	if !asFilterError(err, &ferr) {
		t.Fatalf("error %v is not a *FilterError", err)
	}
	if ferr.Code != ErrConsistency {
		t.Errorf("error code = %v, want %v", ferr.Code, ErrConsistency)
	}
}

// TestSmudgeChunkManifestRejectsMissingBlobHeader covers a host that omits
// the blob header entirely (older/alternate git clients on the v2
// long-running-process smudge path): an absent header must be treated as a
// mismatch, not silently accepted.
func TestSmudgeChunkManifestRejectsMissingBlobHeader(t *testing.T) {
	hash := "000000000000000000000000000000000000000000000000000000000000000a"[:64]

	var in bytes.Buffer
	writeHandshake(&in)
	writePkt(&in, "command=smudge\n")
	writePkt(&in, fmt.Sprintf("pathname=.cdc/%s/%s/%s.cdc\n", hash[0:2], hash[2:4], hash))
	writeFlush(&in) // no blob= header
	writeFlush(&in)
	writeFlush(&in)

	var out bytes.Buffer
	sess, _ := newTestSession(t, &in, &out, false)

	err := sess.Run()
	if err == nil {
		t.Fatal("expected a consistency error for a missing blob header, got nil")
	}
	var ferr *FilterError
	if !asFilterError(err, &ferr) {
		t.Fatalf("error %v is not a *FilterError", err)
	}
	if ferr.Code != ErrConsistency {
		t.Errorf("error code = %v, want %v", ferr.Code, ErrConsistency)
	}
}

func asFilterError(err error, target **FilterError) bool {
	fe, ok := err.(*FilterError)
	if !ok {
		return false
	}
	*target = fe
	return true
}

func drainHandshakeResponse(t *testing.T, ch *packet.Channel) {
	t.Helper()
	for _, want := range []string{"git-filter-server", "version=2"} {
		got, err := ch.ReadPacketText()
		if err != nil || got != want {
			t.Fatalf("handshake line = %q, err %v, want %q", got, err, want)
		}
	}
	flushPkt(t, ch)
	for {
		line, err := ch.ReadPacketText()
		if err != nil {
			t.Fatalf("reading capability line: %v", err)
		}
		if line == "" {
			break
		}
	}
}

func flushPkt(t *testing.T, ch *packet.Channel) {
	t.Helper()
	pkt, err := ch.ReadPacket()
	if err != nil {
		t.Fatalf("reading flush marker: %v", err)
	}
	if len(pkt) != 0 {
		t.Fatalf("expected flush marker, got %q", pkt)
	}
}
