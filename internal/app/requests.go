package app

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pscheid92/votepulse/internal/domain"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

const defaultRankingLimit = 10

// CastVoteRequest submits a vote. VoteType is a pointer so a missing value can be
// told apart from an explicit 0, which clears the client's vote.
type CastVoteRequest struct {
	ProductID string `json:"productId" validate:"required,max=128,excludesall=:"`
	ClientID  string `json:"clientId" validate:"required,max=128"`
	VoteType  *int   `json:"voteType" validate:"required,oneof=-1 0 1"`

	// Caller is the rate-limit identity supplied by the transport. Falls back to ClientID.
	Caller string `json:"-" validate:"-"`
}

type CastVoteResult struct {
	Status    domain.Status
	RateLimit domain.RateDecision
}

type StatusRequest struct {
	ProductID string `json:"productId" validate:"required,max=128,excludesall=:"`
	ClientID  string `json:"clientId" validate:"required,max=128"`
	Caller    string `json:"-" validate:"-"`
}

type StatusResult struct {
	Status    domain.Status
	RateLimit domain.RateDecision
}

type RankingRequest struct {
	Limit  int    `json:"limit" validate:"min=0,max=100"`
	Caller string `json:"-" validate:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
	return v
}

// validateRequest returns an InvalidArgument error describing the first failed field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.InvalidArgumentError("invalid request")
	}

	fe := fieldErrs[0]
	return apperrors.InvalidArgumentError(fe.Field()+" "+describe(fe.Tag(), fe.Param())).
		WithField("field", fe.Field())
}

func describe(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + param + " characters"
	case "oneof":
		return "must be one of: " + param
	case "excludesall":
		return "must not contain " + strconv.Quote(param)
	default:
		return "failed " + tag + " validation"
	}
}

func (r *CastVoteRequest) normalize() {
	r.ProductID = strings.TrimSpace(r.ProductID)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Caller = strings.TrimSpace(r.Caller)
}

func (r *StatusRequest) normalize() {
	r.ProductID = strings.TrimSpace(r.ProductID)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Caller = strings.TrimSpace(r.Caller)
}

// rateIdentity prefers the transport-level caller over the self-declared client id.
func rateIdentity(caller, clientID string) string {
	if caller != "" {
		return caller
	}
	return clientID
}
