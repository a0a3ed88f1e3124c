package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// operatorCreateCmd represents the operator create command
var operatorCreateCmd = &cobra.Command{
	Use:   "create <login>",
	Short: "Create an operator and print its API key",
	Long: `Create an operator and print its API key.

The API key is generated once and only its bcrypt digest is stored, so
this is the only time the key is shown. Admins can ingest identities and
trigger runs; auditors can only read.

The operator's API key will be output to STDOUT.

Example:
  aegisctl operator create alice
  aegisctl operator create ci-bot --role auditor`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		login := args[0]
		role, _ := cmd.Flags().GetString("role")

		apiKey, err := createOperator(login, role)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create operator: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "Created operator '%s' with role '%s'\n", login, role)
		fmt.Printf("API key for %s: %s\n", login, apiKey)
	},
}

func init() {
	operatorCmd.AddCommand(operatorCreateCmd)
	operatorCreateCmd.Flags().StringP("role", "r", identity.RoleAdmin, "Operator role (admin or auditor)")
}

func createOperator(login, role string) (string, error) {
	if role != identity.RoleAdmin && role != identity.RoleAuditor {
		return "", fmt.Errorf("invalid role %q (expected admin or auditor)", role)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	apiKey := base64.URLEncoding.EncodeToString(raw)

	digest, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to digest API key: %w", err)
	}

	database, err := db.Connect(db.Config{})
	if err != nil {
		return "", fmt.Errorf("failed to connect to database: %w", err)
	}

	err = gormstore.NewOperatorStore(database).CreateOperator(&model.Operator{
		Login:        login,
		APIKeyDigest: string(digest),
		Role:         role,
	})
	if errors.Is(err, store.ErrOperatorExists) {
		return "", fmt.Errorf("operator '%s' already exists", login)
	}
	if err != nil {
		return "", err
	}
	return apiKey, nil
}
