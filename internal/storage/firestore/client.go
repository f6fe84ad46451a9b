package firestore

import (
	"context"
	"fmt"
	"os"

	gfs "cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// NewClient connects to Firestore. With FIRESTORE_EMULATOR_HOST set the SDK
// talks to the emulator; otherwise a credentials file is used when present
// and application default credentials when not.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*gfs.Client, error) {
	var opts []option.ClientOption
	switch {
	case os.Getenv("FIRESTORE_EMULATOR_HOST") != "":
		log.Info().Str("emulator", os.Getenv("FIRESTORE_EMULATOR_HOST")).Msg("using firestore emulator")
	case credentialsFile != "":
		if _, err := os.Stat(credentialsFile); err != nil {
			log.Warn().Str("file", credentialsFile).Msg("credentials file not found, falling back to default credentials")
		} else {
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
		}
	}

	client, err := gfs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	log.Info().Str("project", projectID).Msg("firestore client initialized")
	return client, nil
}
