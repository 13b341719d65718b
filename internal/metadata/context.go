package metadata

import (
	"context"

	"github.com/giak/mnemolite/internal/oracle"
)

func oracleContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), oracle.DefaultTimeout)
}
