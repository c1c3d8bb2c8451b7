package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/radieske/coinflip-bet-platform-poc/internal/apiclient"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/oracleapi"
)

// HTTPResolver submete revelações ao POST /resolve do wager-service
type HTTPResolver struct {
	Client *apiclient.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{Client: apiclient.New(baseURL, "")}
}

func (r *HTTPResolver) Resolve(ctx context.Context, rev oracle.Revelation) error {
	_, err := r.Client.Resolve(ctx, dto.RevelationRequest{Handle: rev.Handle, ProviderRandom: rev.ProviderRandom.Hex()})
	// Handle desconhecido ou prova inválida também são 409, mas indicam um
	// oráculo fora do protocolo: seguem para a DLQ como rejeição.
	if apiclient.IsKind(err, "idempotency") && apiclient.ReasonOf(err) == oracleapi.ReasonNotPending {
		return ErrAlreadyResolved
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return err
}
