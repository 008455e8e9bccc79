package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
)

// Sentinel errors for config file uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// ConfigFileService stores uploaded .seb files on local disk, one per
// course module.
type ConfigFileService struct {
	repo     ConfigFileStore
	dir      string
	maxBytes int64
	log      zerolog.Logger
}

// NewConfigFileService creates a new ConfigFileService. Files go under
// uploadDir/seb/{cmid}/.
func NewConfigFileService(repo ConfigFileStore, uploadDir string, maxBytes int64, log zerolog.Logger) *ConfigFileService {
	return &ConfigFileService{
		repo:     repo,
		dir:      filepath.Join(uploadDir, "seb"),
		maxBytes: maxBytes,
		log:      log.With().Str("component", "config_file_service").Logger(),
	}
}

// Save validates and stores a .seb file for cmid, replacing any previous one.
func (s *ConfigFileService) Save(ctx context.Context, cmid int64, filename string, r io.Reader) (*model.ConfigFile, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrFileTooLarge, s.maxBytes)
	}

	if !isXML(mimetype.Detect(data)) {
		return nil, fmt.Errorf("%w: expected an XML .seb file", ErrUnsupportedFileType)
	}
	if err := seb.Validate(data); err != nil {
		return nil, err
	}

	moduleDir := filepath.Join(s.dir, strconv.FormatInt(cmid, 10))
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	destPath := filepath.Join(moduleDir, uuid.New().String()+".seb")
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	previous, err := s.repo.GetByCMID(ctx, cmid)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("get config file: %w", err)
	}

	sum := sha256.Sum256(data)
	f := &model.ConfigFile{
		CMID:     cmid,
		Filename: filepath.Base(filename),
		Path:     destPath,
		SHA256:   hex.EncodeToString(sum[:]),
	}
	if err := s.repo.Upsert(ctx, f); err != nil {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("save config file: %w", err)
	}

	if previous != nil && previous.Path != destPath {
		if err := os.Remove(previous.Path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", previous.Path).Msg("failed to remove replaced config file")
		}
	}

	s.log.Info().Int64("cmid", cmid).Str("sha256", f.SHA256).Msg("config file stored")
	return f, nil
}

// Get returns the metadata of a module's file, or ErrNoConfigFile.
func (s *ConfigFileService) Get(ctx context.Context, cmid int64) (*model.ConfigFile, error) {
	f, err := s.repo.GetByCMID(ctx, cmid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoConfigFile
		}
		return nil, err
	}
	return f, nil
}

// ReadConfigFile returns the stored bytes of a module's file.
func (s *ConfigFileService) ReadConfigFile(ctx context.Context, cmid int64) ([]byte, error) {
	f, err := s.Get(ctx, cmid)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Error().Int64("cmid", cmid).Str("path", f.Path).Msg("config file row exists but file is missing")
			return nil, ErrNoConfigFile
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return bytes.TrimSpace(data), nil
}

// Delete removes a module's file. A module without a file is not an error.
func (s *ConfigFileService) Delete(ctx context.Context, cmid int64) error {
	f, err := s.repo.GetByCMID(ctx, cmid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if err := s.repo.Delete(ctx, cmid); err != nil {
		return fmt.Errorf("delete config file: %w", err)
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", f.Path).Msg("failed to remove config file")
	}
	return nil
}

func isXML(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/xml") || m.Is("application/xml") {
			return true
		}
	}
	return false
}
