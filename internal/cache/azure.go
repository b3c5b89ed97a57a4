package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// BlobCache keeps documents in an Azure storage container so state survives
// a device or container swap.
type BlobCache struct {
	client    *azblob.Client
	container string
}

var _ Cache = (*BlobCache)(nil)

func NewBlobCache(accountName, accountKey, container string) (*BlobCache, error) {
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("azure storage account name and key are required")
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(fmt.Sprintf("https://%s.blob.core.windows.net/", accountName), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobCache{
		client:    client,
		container: container,
	}, nil
}

func (bc *BlobCache) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	stream, err := bc.client.DownloadStream(ctx, bc.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		slog.ErrorContext(ctx, "failed to download blob", "key", key, "error", err)
		return nil, err
	}
	return stream.Body, nil
}

func (bc *BlobCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := bc.client.ServiceClient().NewContainerClient(bc.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (bc *BlobCache) Put(ctx context.Context, key, value string, opts PutOptions) error {
	uploadOpts := &azblob.UploadStreamOptions{}
	if opts.Condition == PutIfNoneMatch {
		uploadOpts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		}
	}

	_, err := bc.client.UploadStream(ctx, bc.container, key, strings.NewReader(value), uploadOpts)
	if err != nil {
		if opts.Condition == PutIfNoneMatch && bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to upload blob %s: %w", key, err)
	}
	return nil
}
