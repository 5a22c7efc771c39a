package stage

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cuemby/molt/pkg/atomicfile"
	"github.com/cuemby/molt/pkg/delta"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/fetch"
	"github.com/cuemby/molt/pkg/hasher"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/metrics"
	"github.com/cuemby/molt/pkg/pathguard"
)

// Candidate is one file selected for staging, with every URL it may be
// fetched from already resolved.
type Candidate struct {
	// Path is the normalized live-relative path
	Path string

	// Size is the expected byte count, 0 when unknown
	Size int64

	// BlobSHA is the git blob identity to verify against (developer mode)
	BlobSHA string

	// SHA256 and CRC32 are the manifest hashes (stable mode)
	SHA256 string
	CRC32  *uint32

	// RawURL is where the full artifact is fetched from
	RawURL string

	// DeltaURL is the optional delta artifact location; empty disables
	// the delta path for this candidate
	DeltaURL string
}

// verifiable reports whether the candidate carries any content identity
func (c *Candidate) verifiable() bool {
	return c.BlobSHA != "" || c.SHA256 != "" || c.CRC32 != nil
}

// Coordinator fetches, verifies, and places artifacts under the staging
// directory. It never touches the live tree.
type Coordinator struct {
	root            string
	stageDir        string
	fetcher         *fetch.Client
	hash            *hasher.Hasher
	chunkSize       int
	preferDelta     bool
	allowUnverified bool
	logger          zerolog.Logger
}

// Options configures a Coordinator
type Options struct {
	Root            string
	StageDir        string // absolute
	Fetcher         *fetch.Client
	ChunkSize       int
	PreferDelta     bool
	AllowUnverified bool
}

// New creates a staging coordinator
func New(opts Options) *Coordinator {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = 1024
	}
	return &Coordinator{
		root:            opts.Root,
		stageDir:        opts.StageDir,
		fetcher:         opts.Fetcher,
		hash:            hasher.New(chunk),
		chunkSize:       chunk,
		preferDelta:     opts.PreferDelta,
		allowUnverified: opts.AllowUnverified,
		logger:          log.WithComponent("stage"),
	}
}

// TotalSize sums the expected sizes of all candidates
func TotalSize(cands []Candidate) int64 {
	var total int64
	for _, c := range cands {
		total += c.Size
	}
	return total
}

// StageAll processes every candidate. The first failure aborts staging;
// the caller discards the stage directory.
func (s *Coordinator) StageAll(ctx context.Context, cands []Candidate) error {
	for i := range cands {
		if err := s.stageOne(ctx, &cands[i]); err != nil {
			metrics.StagingFailures.Inc()
			return err
		}
	}
	return nil
}

// stageOne fetches and verifies one candidate into stage/<path>
func (s *Coordinator) stageOne(ctx context.Context, cand *Candidate) error {
	if err := pathguard.WithinRoot(s.stageDir, cand.Path); err != nil {
		return err
	}
	if !cand.verifiable() && !s.allowUnverified {
		return errdefs.Wrapf(errdefs.ErrIntegrity,
			"no hash for %s and unverified content not allowed", cand.Path)
	}

	livePath := filepath.Join(s.root, filepath.FromSlash(cand.Path))

	// Skip candidates whose live content already matches the target
	// identity; flash write cycles are a budget too.
	if s.liveMatches(livePath, cand) {
		s.logger.Debug().Str("path", cand.Path).Msg("Live content already at target, skipping")
		metrics.FilesSkipped.Inc()
		return nil
	}

	if s.preferDelta && cand.DeltaURL != "" {
		if ok := s.tryDelta(ctx, livePath, cand); ok {
			metrics.FilesStaged.Inc()
			return nil
		}
	}

	if err := s.fetchFull(ctx, cand); err != nil {
		return err
	}
	metrics.FilesStaged.Inc()
	return nil
}

// liveMatches reports whether the live file already hashes to the
// candidate's identity. The size is compared first so a same-prefix
// file of different length never short-circuits the update.
func (s *Coordinator) liveMatches(livePath string, cand *Candidate) bool {
	st, err := os.Stat(livePath)
	if err != nil {
		return false
	}
	if cand.Size > 0 && st.Size() != cand.Size {
		return false
	}
	switch {
	case cand.BlobSHA != "":
		digest, err := s.hash.BlobSHA1File(livePath)
		return err == nil && digest == cand.BlobSHA
	case cand.SHA256 != "":
		digest, err := s.hash.SHA256File(livePath)
		return err == nil && digest == cand.SHA256
	case cand.CRC32 != nil:
		crc, err := s.hash.CRC32File(livePath)
		return err == nil && crc == *cand.CRC32
	}
	return false
}

// tryDelta attempts the delta path: stream the delta artifact through
// the applier against the old live file, verify the post-hash, and
// place the output directly in stage. Any failure falls back to a full
// fetch.
func (s *Coordinator) tryDelta(ctx context.Context, livePath string, cand *Candidate) bool {
	if _, err := os.Stat(livePath); err != nil {
		return false // no old copy to patch
	}

	resp, err := s.fetcher.Get(ctx, cand.DeltaURL, true)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", cand.Path).Msg("No delta artifact, full fetch")
		return false
	}
	defer resp.Body.Close()

	stagePath := filepath.Join(s.stageDir, filepath.FromSlash(cand.Path))
	body := sourceReader{src: s.fetcher.BodySource(resp, s.chunkSize)}

	outSHA, err := delta.Apply(livePath, &body, stagePath, delta.Options{
		ExpectedSHA256: cand.SHA256, // empty in developer mode; checked below
		ChunkSize:      s.chunkSize,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("path", cand.Path).Msg("Delta apply failed, full fetch")
		return false
	}

	// The applier checked SHA-256 when the candidate carried one; the
	// remaining identities are checked from the staged result
	verified := outSHA != "" && cand.SHA256 != ""
	switch {
	case cand.BlobSHA != "":
		digest, err := s.hash.BlobSHA1File(stagePath)
		verified = err == nil && digest == cand.BlobSHA
	case cand.CRC32 != nil && !verified:
		crc, err := s.hash.CRC32File(stagePath)
		verified = err == nil && crc == *cand.CRC32
	}
	if !verified && !(s.allowUnverified && !cand.verifiable()) {
		s.logger.Warn().Str("path", cand.Path).Msg("Delta result identity mismatch, full fetch")
		os.Remove(stagePath)
		return false
	}
	if cand.Size > 0 {
		if st, err := os.Stat(stagePath); err != nil || st.Size() != cand.Size {
			s.logger.Warn().Str("path", cand.Path).Msg("Delta result size mismatch, full fetch")
			os.Remove(stagePath)
			return false
		}
	}

	if cand.Size > 0 && resp.ContentLength > 0 {
		saved := cand.Size - resp.ContentLength
		if saved > 0 {
			metrics.DeltaBytesSaved.Add(float64(saved))
		}
	}
	s.logger.Info().Str("path", cand.Path).Msg("Staged via delta")
	return true
}

// fetchFull streams the raw artifact through the atomic writer while
// hashing, verifying at EOF per the candidate's protocol.
func (s *Coordinator) fetchFull(ctx context.Context, cand *Candidate) error {
	resp, err := s.fetcher.Get(ctx, cand.RawURL, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	stagePath := filepath.Join(s.stageDir, filepath.FromSlash(cand.Path))
	w, err := atomicfile.NewWriter(stagePath)
	if err != nil {
		return err
	}

	shaDigest := sha256.New()
	var blobDigest hash.Hash
	if cand.BlobSHA != "" {
		blobDigest = newBlobDigest(cand.Size)
	}
	crcTable := crc32.MakeTable(crc32.IEEE)
	var crc uint32
	var total int64

	src := s.fetcher.BodySource(resp, s.chunkSize)
	for {
		chunk, rerr := src.ReadChunk()
		if len(chunk) > 0 {
			if _, werr := w.Write(chunk); werr != nil {
				w.Abort()
				return werr
			}
			shaDigest.Write(chunk)
			if blobDigest != nil {
				blobDigest.Write(chunk)
			}
			crc = crc32.Update(crc, crcTable, chunk)
			total += int64(len(chunk))
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			w.Abort()
			return errdefs.Wrap(errdefs.ErrNetwork, rerr)
		}
	}

	if err := s.verify(cand, total, hex.EncodeToString(shaDigest.Sum(nil)), blobDigest, crc); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

// verify applies the per-mode checks at end of stream
func (s *Coordinator) verify(cand *Candidate, total int64, sha string, blobDigest hash.Hash, crc uint32) error {
	if cand.Size > 0 && total != cand.Size {
		return errdefs.Wrapf(errdefs.ErrIntegrity,
			"size mismatch for %s: expected %d, got %d", cand.Path, cand.Size, total)
	}
	switch {
	case cand.BlobSHA != "":
		if total != cand.Size {
			return errdefs.Wrapf(errdefs.ErrIntegrity, "size mismatch for %s", cand.Path)
		}
		digest := hex.EncodeToString(blobDigest.Sum(nil))
		if digest != cand.BlobSHA {
			return errdefs.Wrapf(errdefs.ErrIntegrity, "blob hash mismatch for %s", cand.Path)
		}
	case cand.SHA256 != "":
		if sha != cand.SHA256 {
			return errdefs.Wrapf(errdefs.ErrIntegrity, "sha256 mismatch for %s", cand.Path)
		}
	case cand.CRC32 != nil:
		if crc != *cand.CRC32 {
			return errdefs.Wrapf(errdefs.ErrIntegrity, "crc32 mismatch for %s", cand.Path)
		}
	}
	return nil
}

// newBlobDigest seeds a SHA-1 with the git blob header for declaredSize
func newBlobDigest(declaredSize int64) hash.Hash {
	d := sha1.New()
	d.Write([]byte("blob " + strconv.FormatInt(declaredSize, 10) + "\x00"))
	return d
}

// sourceReader adapts a ChunkSource back to io.Reader for the delta
// applier's streaming interface
type sourceReader struct {
	src     hasher.ChunkSource
	pending []byte
	eof     bool
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 && !r.eof {
		chunk, err := r.src.ReadChunk()
		if len(chunk) > 0 {
			r.pending = append(r.pending[:0], chunk...)
		}
		if err != nil {
			r.eof = true
		}
	}
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}
	if r.eof {
		return 0, io.EOF
	}
	return 0, nil
}
