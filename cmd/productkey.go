package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/soundvault/ms-go-auth/app/service"
)

var productKeyCmd = &cobra.Command{
	Use:   "productkey",
	Short: "Manage admin signup product keys",
}

var productKeyGenerateCmd = &cobra.Command{
	Use:   "generate <email> <role>",
	Short: "Generate the product key hash for an email and role",
	Long:  `Derive the product key for an email/role pair from PRODUCT_KEY_SECRET. The printed hash is what the prospective administrator supplies at signup.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		_ = godotenv.Load()

		secret := strings.TrimSpace(os.Getenv("PRODUCT_KEY_SECRET"))
		if secret == "" {
			return errors.New("PRODUCT_KEY_SECRET environment variable is required")
		}

		email := args[0]
		role := strings.ToUpper(args[1])

		key, err := service.ProductKeyHash(secret, email, role)
		if err != nil {
			if errors.Is(err, service.ErrInvalidRole) {
				return fmt.Errorf("unknown role %q", args[1])
			}
			return err
		}

		fmt.Printf("email: %s\n", email)
		fmt.Printf("role: %s\n", role)
		fmt.Printf("product_key: %s\n", key)
		return nil
	},
}

func init() {
	productKeyCmd.AddCommand(productKeyGenerateCmd)
	rootCmd.AddCommand(productKeyCmd)
}
