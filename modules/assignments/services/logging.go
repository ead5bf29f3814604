package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lendops/pkg/composables"
)

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	logger := composables.UseLogger(ctx)
	if logger == nil {
		return
	}
	logger.WithFields(fields).Log(level, msg)
}

func logRejected(ctx context.Context, operation string, entityID uuid.UUID, err error, extra logrus.Fields) {
	fields := logrus.Fields{
		"operation":  operation,
		"error_code": errorCode(err),
	}
	if entityID != uuid.Nil {
		fields["entity_id"] = entityID.String()
	}
	if svcErr, ok := asServiceError(err); ok && svcErr.ConflictID != uuid.Nil {
		fields["conflict_id"] = svcErr.ConflictID.String()
	}
	for k, v := range extra {
		fields[k] = v
	}
	logWithFields(ctx, logrus.WarnLevel, "assignments.mutation.rejected", fields)
}
