package mongodb

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/restock/internal/domain/models"
)

// Server error codes that signal exhausted capacity rather than a bad request.
var quotaCodes = []int{
	8000,  // AtlasError (tier storage / operation limits)
	12501, // QuotaExceeded
	14031, // OutOfDiskSpace
	16500, // RequestRateTooLarge
}

const writeConflictCode = 112

// translate maps driver errors onto the domain error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		for _, code := range quotaCodes {
			if serverErr.HasErrorCode(code) {
				return fmt.Errorf("%w: %v", models.ErrQuotaExceeded, err)
			}
		}
		if serverErr.HasErrorCode(writeConflictCode) || serverErr.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%w: %w: %v", models.ErrConflict, models.ErrTransient, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "quota") {
		return fmt.Errorf("%w: %v", models.ErrQuotaExceeded, err)
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	return err
}
