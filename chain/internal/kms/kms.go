package kms

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
)

// Client is the subset of the AWS KMS API used to sign EVM transactions.
type Client interface {
	GetPublicKey(input *kms.GetPublicKeyInput) (*kms.GetPublicKeyOutput, error)
	Sign(input *kms.SignInput) (*kms.SignOutput, error)
}

// SPKI is the ASN.1 SubjectPublicKeyInfo structure returned by KMS GetPublicKey.
type SPKI struct {
	AlgorithmIdentifier pkix.AlgorithmIdentifier
	SubjectPublicKey    asn1.BitString
}

// ECDSASig is the ASN.1 DER structure of an ECDSA signature returned by KMS Sign.
type ECDSASig struct {
	R asn1.RawValue
	S asn1.RawValue
}

// ClientConfig configures a KMS client.
type ClientConfig struct {
	// KeyID is the ID of the KMS key.
	KeyID string
	// KeyRegion is the AWS region the key lives in.
	KeyRegion string
	// AWSProfile is the name of the shared config profile. When empty, the default credential
	// chain (environment variables first) is used.
	AWSProfile string
}

func (c ClientConfig) validate() error {
	if c.KeyID == "" {
		return errors.New("KMS key ID is required")
	}
	if c.KeyRegion == "" {
		return errors.New("KMS key region is required")
	}

	return nil
}

// NewClient returns a KMS client for the configured region and profile.
func NewClient(config ClientConfig) (Client, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid KMS config: %w", err)
	}

	opts := session.Options{
		Config: aws.Config{Region: aws.String(config.KeyRegion)},
	}
	if config.AWSProfile != "" {
		opts.Profile = config.AWSProfile
		opts.SharedConfigState = session.SharedConfigEnable
	}

	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return kms.New(sess), nil
}
