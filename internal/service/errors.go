package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/opensplit/internal/calculator"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
	"github.com/mmynk/opensplit/internal/ocr"
	"github.com/mmynk/opensplit/internal/storage"
)

var (
	errUnauthenticated    = errors.New("authentication required")
	errNotMember          = errors.New("you are not a member of this group")
	errNotAdmin           = errors.New("only group admins can do this")
	errNotInvolved        = errors.New("you are not part of this expense")
	errNotEditor          = errors.New("only the creator, the payer or a group admin can change this expense")
	errGroupInUse         = errors.New("group still has expenses")
	errOutstandingBalance = errors.New("member has an outstanding balance")
	errCreatorMembership  = errors.New("the group creator cannot leave the group")
	errOCRDisabled        = errors.New("receipt scanning is not configured")
)

// invalidInput lists the model sentinels that describe bad client input.
var invalidInput = []error{
	models.ErrEmptyDescription,
	models.ErrDescriptionLong,
	models.ErrInvalidTotal,
	models.ErrMissingCreator,
	models.ErrInvalidSplitMode,
	models.ErrNoSplits,
	models.ErrSplitMismatch,
	models.ErrDuplicateSplit,
	models.ErrSplitFields,
	models.ErrItemsNotAllowed,
	models.ErrInvalidItem,
	models.ErrEmptyGroupName,
	models.ErrGroupNameLong,
	models.ErrInvalidRole,
	models.ErrInvalidEmail,
	models.ErrInvalidPhone,
	money.ErrInvalidAmount,
	money.ErrCurrencyMismatch,
	money.ErrInvalidWeights,
	money.ErrOverflow,
}

// connectError maps domain, storage and calculator errors to Connect codes.
// Split validation failures carry a structpb detail with kind, field and
// reason so clients can point at the offending input.
func connectError(err error) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	var (
		validation *calculator.ValidationError
		empty      *calculator.EmptyParticipantsError
		unassigned *calculator.UnassignedItemError
		unbalanced *calculator.UnbalancedInputError
	)
	switch {
	case errors.As(err, &validation):
		return withDetail(connect.NewError(connect.CodeInvalidArgument, err), "validation", validation.Field, validation.Reason)
	case errors.As(err, &empty):
		return withDetail(connect.NewError(connect.CodeInvalidArgument, err), "empty_participants", "participant_ids", err.Error())
	case errors.As(err, &unassigned):
		return withDetail(connect.NewError(connect.CodeInvalidArgument, err), "unassigned_item", "items", err.Error())
	case errors.As(err, &unbalanced):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, storage.ErrAlreadyMember):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, ocr.ErrExtractionFailed), errors.Is(err, errOCRDisabled):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, errUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, errNotMember), errors.Is(err, errNotAdmin),
		errors.Is(err, errNotInvolved), errors.Is(err, errNotEditor):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, errGroupInUse), errors.Is(err, errOutstandingBalance), errors.Is(err, errCreatorMembership):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	}
	for _, target := range invalidInput {
		if errors.Is(err, target) {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}
	}
	return connect.NewError(connect.CodeInternal, err)
}

func withDetail(ce *connect.Error, kind, field, reason string) *connect.Error {
	st, err := structpb.NewStruct(map[string]any{
		"kind":   kind,
		"field":  field,
		"reason": reason,
	})
	if err != nil {
		return ce
	}
	detail, err := connect.NewErrorDetail(st)
	if err != nil {
		return ce
	}
	ce.AddDetail(detail)
	return ce
}

// fail logs err for op and converts it. Server faults log at ERROR, client
// mistakes at DEBUG since the RPC interceptor already reports them.
func fail(op string, err error, attrs ...any) error {
	ce := connectError(err)
	attrs = append(attrs, "code", ce.Code().String(), "error", err)
	if ce.Code() == connect.CodeInternal {
		slog.Error(op+" failed", attrs...)
	} else {
		slog.Debug(op+" failed", attrs...)
	}
	return ce
}

func invalidArgument(msg string) error {
	return connect.NewError(connect.CodeInvalidArgument, errors.New(msg))
}
