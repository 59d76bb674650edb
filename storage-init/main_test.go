package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

func TestAlreadyExists(t *testing.T) {
	conflict := fmt.Errorf("create: %w", &azcore.ResponseError{ErrorCode: string(aztables.TableAlreadyExists), StatusCode: http.StatusConflict})
	if !alreadyExists(conflict, string(aztables.TableAlreadyExists)) {
		t.Fatalf("expected wrapped conflict to be recognised")
	}
	if alreadyExists(conflict, queueAlreadyExists) {
		t.Fatalf("codes must match exactly")
	}
	if alreadyExists(errors.New("network"), queueAlreadyExists) {
		t.Fatalf("plain errors are not conflicts")
	}
}

func TestCreateSkipsBlankNames(t *testing.T) {
	if err := createQueues(context.Background(), "unused", []string{""}); err != nil {
		t.Fatalf("blank queue names must be skipped: %v", err)
	}
}
