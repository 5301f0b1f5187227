package provisioning

import (
	"context"
	"fmt"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/storage"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// StorageProvisioner reserves the tenant's export prefix in blob storage by
// writing a marker object. Listing tools then see the school immediately,
// before its first export exists.
type StorageProvisioner struct {
	blobs storage.BlobStore
}

func NewStorageProvisioner(blobs storage.BlobStore) *StorageProvisioner {
	if blobs == nil {
		panic("storage provisioner requires a blob store")
	}
	return &StorageProvisioner{blobs: blobs}
}

func (p *StorageProvisioner) Name() string { return "storage" }

func (p *StorageProvisioner) Provision(ctx context.Context, space tenant.Space) error {
	key := fmt.Sprintf("exports/%s/.tenant", space.TenantID)
	if _, err := p.blobs.Put(ctx, key, "text/plain", []byte(space.Slug+"\n")); err != nil {
		return fmt.Errorf("write tenant marker: %w", err)
	}
	return nil
}
