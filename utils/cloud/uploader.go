package cloud

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"haruki-vroid-deobfuscator/config"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var logger = harukiLogger.NewLogger("HarukiCloudStorageUploader", "INFO", nil)

const (
	StorageTypeCommand = "command"
	StorageTypeS3      = "s3"
)

type uploadFunc func(ctx context.Context, filePath string, remotePath string) error

func commandUploader(storage config.RemoteStorageConfig) uploadFunc {
	return func(ctx context.Context, filePath string, remotePath string) error {
		args := make([]string, len(storage.Args))
		copy(args, storage.Args)
		for i, arg := range args {
			if arg == "src" {
				args[i] = filePath
			} else if arg == "dst" {
				args[i] = remotePath
			}
		}
		logger.Debugf("Uploading %s to %s using command: %s %s",
			filePath, remotePath, storage.Program, strings.Join(args, " "))
		cmd := exec.CommandContext(ctx, storage.Program, args...)
		cmd.Stdout = nil
		cmd.Stderr = nil
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to upload %s to %s using command: %s %s: %w",
				filePath, remotePath, storage.Program, strings.Join(args, " "), err)
		}
		return nil
	}
}

func newS3Client(storage config.RemoteStorageConfig) *s3.Client {
	return s3.New(s3.Options{
		Region:       storage.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(storage.AccessKeyID, storage.SecretAccessKey, ""),
		BaseEndpoint: nilIfEmpty(storage.Endpoint),
		UsePathStyle: storage.UsePathStyle,
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func s3Uploader(storage config.RemoteStorageConfig) uploadFunc {
	client := newS3Client(storage)
	return func(ctx context.Context, filePath string, remotePath string) error {
		f, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		key := strings.TrimPrefix(filepath.ToSlash(remotePath), "/")
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(storage.Bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("failed to put %s into bucket %s: %w", key, storage.Bucket, err)
		}
		return nil
	}
}

func uploaderFor(storage config.RemoteStorageConfig) (uploadFunc, error) {
	switch storage.Type {
	case StorageTypeS3:
		if storage.Bucket == "" {
			return nil, fmt.Errorf("s3 storage %s has no bucket", storage.Base)
		}
		return s3Uploader(storage), nil
	case StorageTypeCommand, "":
		if storage.Program == "" {
			return nil, fmt.Errorf("command storage %s has no program", storage.Base)
		}
		return commandUploader(storage), nil
	default:
		return nil, fmt.Errorf("unknown remote storage type %q", storage.Type)
	}
}

func remotePathFor(storage config.RemoteStorageConfig, relativePath string) string {
	if storage.Type == StorageTypeS3 {
		return path.Join(storage.Base, filepath.ToSlash(relativePath))
	}
	return filepath.Join(storage.Base, relativePath)
}

func UploadToStorage(
	ctx context.Context,
	storage config.RemoteStorageConfig,
	exportedList []string,
	localRoot string,
	concurrency int,
) error {
	upload, err := uploaderFor(storage)
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	semaphore := make(chan struct{}, concurrency)
	errChan := make(chan error, len(exportedList))
	var wg sync.WaitGroup
	uploadFile := func(filePath string) {
		defer wg.Done()
		semaphore <- struct{}{}
		defer func() { <-semaphore }()
		relativePath, err := filepath.Rel(localRoot, filePath)
		if err != nil {
			errChan <- fmt.Errorf("failed to get relative path for %s: %w", filePath, err)
			return
		}
		remotePath := remotePathFor(storage, relativePath)
		if err := upload(ctx, filePath, remotePath); err != nil {
			logger.Errorf("Failed to upload %s to %s", filePath, remotePath)
			errChan <- err
			return
		}
		logger.Infof("Successfully uploaded %s to %s", filePath, remotePath)
	}
	for _, filePath := range exportedList {
		wg.Add(1)
		go uploadFile(filePath)
	}
	wg.Wait()
	close(errChan)
	var errors []error
	for err := range errChan {
		errors = append(errors, err)
	}
	if len(errors) > 0 {
		return errors[0]
	}
	return nil
}

// UploadToAllStorages uploads every file to each configured storage in turn.
// Local files are removed only after all storages succeeded.
func UploadToAllStorages(
	ctx context.Context,
	storages []config.RemoteStorageConfig,
	exportedList []string,
	localRoot string,
	concurrency int,
	removeLocal bool,
) error {
	if len(storages) == 0 {
		logger.Infof("No remote storages configured, skipping upload")
		return nil
	}

	for _, storage := range storages {
		logger.Infof("Uploading to remote storage: %s (type: %s)", storage.Base, storage.Type)
		if err := UploadToStorage(ctx, storage, exportedList, localRoot, concurrency); err != nil {
			return fmt.Errorf("failed to upload to storage %s: %w", storage.Base, err)
		}
		logger.Infof("Successfully uploaded all files to storage: %s", storage.Base)
	}

	if removeLocal {
		for _, filePath := range exportedList {
			if err := os.Remove(filePath); err != nil {
				logger.Warnf("Failed to delete local file %s after upload: %v", filePath, err)
			} else {
				logger.Debugf("Deleted local file %s after successful upload", filePath)
			}
		}
	}
	logger.Infof("Successfully uploaded to all configured remote storages")
	return nil
}
