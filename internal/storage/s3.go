package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/config"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/engine"
)

// Encrypted archive objects start with this magic, followed by
// salt(16) + nonce(12) + GCM ciphertext with trailing auth tag.
const magicGCM = "MRG3NCR0"

// Archiver uploads the reviewable artifacts of a finished run (merge
// log and QC docs) to S3, optionally encrypting each object.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	password string
}

// New builds an archiver from config. Static credentials and region
// are optional; the default AWS chain applies otherwise.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Archiver, error) {
	var opts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &Archiver{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		password: cfg.Password,
	}, nil
}

// ArchiveRun uploads the merge log and QC docs from outputDir under
// <prefix>/<runID>/. Merged family PDFs stay local; only the artifacts
// a reviewer needs leave the machine. Individual upload failures do
// not stop the walk.
func (a *Archiver) ArchiveRun(ctx context.Context, runID, outputDir string) error {
	uploaded, failed := 0, 0
	err := filepath.WalkDir(outputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != engine.LogName && !strings.HasPrefix(rel, engine.QCDirName+"/") {
			return nil
		}

		key := path.Join(a.prefix, runID, rel)
		if uerr := a.uploadFile(ctx, key, p); uerr != nil {
			log.Error().Err(uerr).Str("key", key).Msg("archive upload failed")
			failed++
			return nil
		}
		uploaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", outputDir, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archive objects failed to upload", failed, uploaded+failed)
	}
	log.Info().Str("run_id", runID).Int("objects", uploaded).Str("bucket", a.bucket).Msg("run archived")
	return nil
}

func (a *Archiver) uploadFile(ctx context.Context, key, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	var body io.Reader = f
	meta := map[string]string{"name": filepath.Base(p)}
	if a.password != "" {
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		sealed, err := encryptGCM(data, a.password)
		if err != nil {
			return fmt.Errorf("encrypting %s: %w", p, err)
		}
		body = bytes.NewReader(sealed)
		meta["encrypted"] = "true"
		meta["encryption-format"] = magicGCM
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType(p)),
		Metadata:    meta,
	})
	if err != nil {
		return err
	}
	log.Debug().Str("key", key).Bool("encrypted", a.password != "").Msg("archive object uploaded")
	return nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// encryptGCM seals data into the archive container format. The key is
// derived from the password with PBKDF2-SHA256.
func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, len(magicGCM)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, magicGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// decryptGCM opens an archive container produced by encryptGCM.
func decryptGCM(blob []byte, password string) ([]byte, error) {
	if len(blob) < len(magicGCM)+16+12+16 {
		return nil, fmt.Errorf("archive container too short: %d bytes", len(blob))
	}
	if string(blob[:len(magicGCM)]) != magicGCM {
		return nil, fmt.Errorf("not an archive container")
	}

	salt := blob[8:24]
	nonce := blob[24:36]
	ciphertext := blob[36:]

	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("archive decryption failed: %w", err)
	}
	return plaintext, nil
}
