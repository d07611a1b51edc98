package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const requestTimeout = 15 * time.Second

type remote struct {
	server     string
	token      string
	adminToken string
}

func (r *remote) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&r.server, "server", envOr("MINTLEDGER_URL", "http://localhost:8080"), "server base URL")
	fs.StringVar(&r.token, "token", os.Getenv("MINTLEDGER_TOKEN"), "bearer token of the sender")
}

func (r *remote) do(method, path string, body any, out io.Writer) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.server, "/")+"/v1"+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.adminToken != "" {
		req.Header.Set("X-Admin-Token", r.adminToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintln(out, string(raw))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func runConfigure(args []string, out io.Writer) error {
	var r remote
	fs := newFlagSet("configure")
	r.addFlags(fs)
	owner := fs.String("owner", "", "factory owner (defaults to the token sender)")
	value := fs.String("value", "", "value attached to the message")
	price := fs.String("price", "", "mint price")
	uri := fs.String("content-uri", "", "collection metadata URI")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return r.do(http.MethodPost, "/factories", map[string]any{
		"owner":       *owner,
		"value":       *value,
		"price":       *price,
		"content_uri": *uri,
	}, out)
}

func runPromote(args []string, out io.Writer) error {
	var r remote
	fs := newFlagSet("promote")
	r.addFlags(fs)
	factory := fs.String("factory", "", "factory address")
	value := fs.String("value", "", "value attached to the message")
	uri := fs.String("content-uri", "", "item metadata URI")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *factory == "" {
		return errors.New("--factory is required")
	}
	return r.do(http.MethodPost, "/factories/"+url.PathEscape(*factory)+"/promote", map[string]any{
		"value":       *value,
		"content_uri": *uri,
	}, out)
}

func runWithdraw(args []string, out io.Writer) error {
	var r remote
	fs := newFlagSet("withdraw")
	r.addFlags(fs)
	factory := fs.String("factory", "", "factory address")
	value := fs.String("value", "", "value attached to the message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *factory == "" {
		return errors.New("--factory is required")
	}
	return r.do(http.MethodPost, "/factories/"+url.PathEscape(*factory)+"/withdraw", map[string]any{
		"value": *value,
	}, out)
}

func runTransfer(args []string, out io.Writer) error {
	var r remote
	fs := newFlagSet("transfer")
	r.addFlags(fs)
	item := fs.String("item", "", "item address")
	value := fs.String("value", "", "value attached to the message")
	holder := fs.String("new-holder", "", "requested new holder")
	queryID := fs.Uint64("query-id", 0, "query id echoed in responses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *item == "" {
		return errors.New("--item is required")
	}
	return r.do(http.MethodPost, "/items/"+url.PathEscape(*item)+"/transfer", map[string]any{
		"value":      *value,
		"query_id":   *queryID,
		"new_holder": *holder,
	}, out)
}

func runFund(args []string, out io.Writer) error {
	var r remote
	fs := newFlagSet("fund")
	r.addFlags(fs)
	fs.StringVar(&r.adminToken, "admin-token", os.Getenv("ADMIN_API_TOKEN"), "faucet admin token")
	account := fs.String("account", "", "account address")
	amount := fs.String("amount", "", "amount to credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return errors.New("--account is required")
	}
	return r.do(http.MethodPost, "/accounts/"+url.PathEscape(*account)+"/fund", map[string]any{
		"amount": *amount,
	}, out)
}

func runGet(args []string, out io.Writer) error {
	var r remote
	fs := newFlagSet("get")
	r.addFlags(fs)
	factory := fs.String("factory", "", "factory address")
	index := fs.String("index", "", "with --factory, resolve the item address at this index")
	item := fs.String("item", "", "item address")
	account := fs.String("account", "", "account address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var path string
	switch {
	case *factory != "" && *index != "":
		path = "/factories/" + url.PathEscape(*factory) + "/items/" + url.PathEscape(*index)
	case *factory != "":
		path = "/factories/" + url.PathEscape(*factory)
	case *item != "":
		path = "/items/" + url.PathEscape(*item)
	case *account != "":
		path = "/accounts/" + url.PathEscape(*account)
	default:
		return errors.New("one of --factory, --item or --account is required")
	}
	return r.do(http.MethodGet, path, nil, out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
