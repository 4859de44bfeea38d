package particlesource

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/scalfmm-go/fmm/internal/logger"
)

// readSeekCloser adapts a bytes.Reader to the io.ReadSeekCloser the Azure
// blob upload API wants; an in-memory buffer never needs a real Close.
type readSeekCloser struct {
	io.ReadSeeker
}

func (r *readSeekCloser) Close() error { return nil }

// AzureBackend reads and writes particle datasets as blobs in an Azure
// Blob Storage container.
type AzureBackend struct {
	client        *azblob.Client
	containerName string
}

// AzureConfig configures an AzureBackend.
type AzureConfig struct {
	AccountName       string
	AccountKey        string
	ContainerName     string
	ConnectionString  string
}

// NewAzureBackend connects a backend to cfg.ContainerName.
func NewAzureBackend(ctx context.Context, cfg *AzureConfig) (*AzureBackend, error) {
	var client *azblob.Client
	var err error
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("particlesource: azure credentials: %w", credErr)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	default:
		return nil, fmt.Errorf("particlesource: azure backend needs a connection string or account key")
	}
	if err != nil {
		return nil, fmt.Errorf("particlesource: azure client: %w", err)
	}

	if _, err := client.ServiceClient().NewContainerClient(cfg.ContainerName).GetProperties(ctx, nil); err != nil {
		return nil, fmt.Errorf("particlesource: azure container %s unreachable: %w", cfg.ContainerName, err)
	}

	logger.Info("particlesource: Azure backend bound to container %s", cfg.ContainerName)
	return &AzureBackend{client: client, containerName: cfg.ContainerName}, nil
}

func (a *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	blob := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlobClient(key)
	resp, err := blob.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("particlesource: azure get %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (a *AzureBackend) Put(ctx context.Context, key string, data []byte) error {
	blob := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(key)
	reader := &readSeekCloser{bytes.NewReader(data)}
	if _, err := blob.Upload(ctx, reader, nil); err != nil {
		return fmt.Errorf("particlesource: azure put %s: %w", key, err)
	}
	logger.Debug("particlesource: wrote %s to azure container %s", key, a.containerName)
	return nil
}

func (a *AzureBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	container := a.client.ServiceClient().NewContainerClient(a.containerName)
	pager := container.NewListBlobsFlatPager(&azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("particlesource: azure list %s: %w", prefix, err)
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				keys = append(keys, *blob.Name)
			}
		}
	}
	return keys, nil
}

func (a *AzureBackend) Type() string { return "azure" }

var _ Backend = (*AzureBackend)(nil)
