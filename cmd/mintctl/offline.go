package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"mintledger/internal/addressing"
	jwttoken "mintledger/internal/jwt_token"
	"mintledger/pkg/codec"
	"mintledger/pkg/content"
	"mintledger/pkg/domain"
)

func runAddress(args []string, out io.Writer) error {
	fs := newFlagSet("address")
	owner := fs.String("owner", "", "factory owner; prints the factory address")
	collection := fs.String("collection", "", "factory address; prints the item address with --index")
	index := fs.Uint64("index", 0, "item index within the collection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *owner != "" && *collection != "":
		return errors.New("--owner and --collection are mutually exclusive")
	case *owner != "":
		addr, err := domain.ParseAddress(*owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		fmt.Fprintln(out, addressing.ForFactory(addr))
	case *collection != "":
		addr, err := domain.ParseAddress(*collection)
		if err != nil {
			return fmt.Errorf("collection: %w", err)
		}
		fmt.Fprintln(out, addressing.ForItem(addr, *index))
	default:
		return errors.New("one of --owner or --collection is required")
	}
	return nil
}

func runContent(args []string, out io.Writer) error {
	fs := newFlagSet("content")
	uri := fs.String("uri", "", "off-chain URI to encode")
	decode := fs.String("decode", "", "hex-encoded content to decode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *uri != "" && *decode != "":
		return errors.New("--uri and --decode are mutually exclusive")
	case *uri != "":
		fmt.Fprintln(out, hex.EncodeToString(content.EncodeOffChain(*uri)))
	case *decode != "":
		raw, err := hex.DecodeString(*decode)
		if err != nil {
			return fmt.Errorf("decode hex: %w", err)
		}
		decoded, err := content.DecodeOffChain(raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, decoded)
	default:
		return errors.New("one of --uri or --decode is required")
	}
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := newFlagSet("token")
	sender := fs.String("sender", "", "sender address the token authenticates")
	key := fs.String("key", envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"), "HMAC signing key")
	issuer := fs.String("issuer", envOr("JWT_ISSUER", "mintledger"), "token issuer")
	audience := fs.String("audience", envOr("JWT_AUDIENCE", "mintledger-api"), "token audience")
	version := fs.String("api-version", string(domain.APIVersionV1), "API version claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := domain.ParseAddress(*sender)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	v, err := domain.ParseAPIVersion(*version)
	if err != nil {
		return err
	}
	token, err := jwttoken.NewJWTService(*key, *issuer, *audience).GenerateAccessToken(addr, v, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runDiag(args []string, out io.Writer) error {
	fs := newFlagSet("diag")
	payload := fs.String("hex", "", "hex-encoded CBOR payload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := hex.DecodeString(*payload)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	diag, err := codec.Diagnose(raw)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, diag)
	return nil
}
