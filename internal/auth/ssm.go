package auth

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// SSMAPI is the subset of the SSM client used to read the admin secret.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecretFromSSM reads a (usually SecureString) parameter holding the
// admin password.
func LoadSecretFromSSM(ctx context.Context, client SSMAPI, name string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}

	secret := strings.TrimSpace(*out.Parameter.Value)
	if secret == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return secret, nil
}
