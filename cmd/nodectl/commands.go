package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/httpremote"
)

func nodeURL() string {
	if v := os.Getenv("NODE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func client() node.Node {
	return httpremote.New(nodeURL(), "/api/v1")
}

// exitForKind maps a node.Kind to the CLI's fixed exit-code set.
func exitForKind(kind node.Kind) int {
	switch kind {
	case node.KindNotFound:
		return exitNotFound
	case node.KindValidation:
		return exitValidation
	case node.KindNoSchema:
		return exitNoSchema
	default:
		return exitBackend
	}
}

func cmdRead(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: nodectl read <uri>")
		return exitValidation
	}
	c := client()
	defer c.Close()
	res := c.Read(ctx, args[0])
	if !res.OK {
		fmt.Fprintln(stderr, res.Error.Error())
		return exitForKind(res.Error.Kind)
	}
	enc, err := json.Marshal(res.Record)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitBackend
	}
	fmt.Fprintln(stdout, string(enc))
	return exitOK
}

func cmdList(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: nodectl list <uri>")
		return exitValidation
	}
	c := client()
	defer c.Close()
	res := c.List(ctx, args[0], node.DefaultListOptions())
	if res.Error != nil {
		fmt.Fprintln(stderr, res.Error.Error())
		return exitForKind(res.Error.Kind)
	}
	enc, err := json.Marshal(res)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitBackend
	}
	fmt.Fprintln(stdout, string(enc))
	return exitOK
}

func cmdWrite(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: nodectl write <uri> <json-value>")
		return exitValidation
	}
	var value interface{}
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		fmt.Fprintf(stderr, "invalid JSON value: %v\n", err)
		return exitValidation
	}
	c := client()
	defer c.Close()
	res := c.Receive(ctx, node.ReceiveInput{URI: args[0], Data: value})
	if !res.Accepted {
		fmt.Fprintln(stderr, res.Error.Error())
		return exitForKind(res.Error.Kind)
	}
	fmt.Fprintln(stdout, res.ResolvedURI)
	return exitOK
}

func cmdDelete(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: nodectl delete <uri>")
		return exitValidation
	}
	c := client()
	defer c.Close()
	res := c.Delete(ctx, args[0])
	if !res.OK {
		fmt.Fprintln(stderr, res.Error.Error())
		return exitForKind(res.Error.Kind)
	}
	fmt.Fprintln(stdout, "deleted")
	return exitOK
}
