package firebase

import (
	"context"
	"fmt"

	"firebridge/internal/config"

	"cloud.google.com/go/firestore"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/sirupsen/logrus"
)

// Clients bundles the Admin SDK app and the Google Cloud clients behind it.
type Clients struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client
	Storage   *storage.Client
	// IAM is only needed to sign upload URLs and may be nil.
	IAM *credentials.IamCredentialsClient

	ProjectID string
	Bucket    string
}

func NewClients(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Clients, error) {
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	authClient, err := NewAuthClient(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}

	fs, err := firestore.NewClient(ctx, cfg.ProjectID, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	st, err := storage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("storage client: %w", err)
	}

	var iam *credentials.IamCredentialsClient
	if cfg.SignedURLServiceAccountEmail != "" {
		iam, err = credentials.NewIamCredentialsClient(ctx, ClientOptions(cfg)...)
		if err != nil {
			log.WithError(err).Warn("IAM credentials client unavailable, signed upload URLs disabled")
			iam = nil
		}
	}

	return &Clients{
		App:       app,
		Auth:      authClient,
		Firestore: fs,
		Storage:   st,
		IAM:       iam,
		ProjectID: cfg.ProjectID,
		Bucket:    cfg.StorageBucket,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Firestore != nil {
		_ = c.Firestore.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.IAM != nil {
		_ = c.IAM.Close()
	}
}
