package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"portfolio/internal/auth"
	"portfolio/internal/config"
	"portfolio/internal/content"
	"portfolio/internal/database"
)

type dbFlags struct {
	host, name, user, password, sslMode string
	port                                int
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags dbFlags
	root := &cobra.Command{
		Use:           "portfolio-admin",
		Short:         "运维工具：初始化管理员、迁移表结构、写入演示数据",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.host, "db-host", "", "数据库 Host（默认读 DATABASE_HOST）")
	pf.IntVar(&flags.port, "db-port", 0, "数据库 Port（默认读 DATABASE_PORT）")
	pf.StringVar(&flags.name, "db-name", "", "数据库名（默认读 POSTGRES_DB）")
	pf.StringVar(&flags.user, "db-user", "", "数据库用户（默认读 POSTGRES_USER）")
	pf.StringVar(&flags.password, "db-password", "", "数据库密码（默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&flags.sslMode, "db-sslmode", "", "数据库 SSLMODE（默认读 DATABASE_SSLMODE）")

	root.AddCommand(
		newCreateAdminCmd(&flags),
		newMigrateCmd(&flags),
		newSeedCmd(&flags),
	)
	return root
}

func newCreateAdminCmd(flags *dbFlags) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "创建或提升管理员账号，并生成一次性密码",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(flags)
			if err != nil {
				return err
			}
			user, password, err := auth.NewUsers(db).EnsureAdmin(cmd.Context(), email, name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "管理员账号已就绪（首次登录需强制改密）：")
			fmt.Fprintf(out, "邮箱: %s\n", user.Email)
			fmt.Fprintf(out, "初始密码: %s\n", password)
			fmt.Fprintln(out, "提示：请立即登录并修改密码（该密码仅显示一次）。")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "管理员邮箱（必填）")
	cmd.Flags().StringVar(&name, "name", "", "显示名称")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newMigrateCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "按模型自动迁移全部表",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := openDatabase(flags); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func newSeedCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "写入演示内容（已有数据的资源会被跳过）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(flags)
			if err != nil {
				return err
			}
			report, err := content.Seed(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "site config created: %t, about: %d, skills: %d, experience: %d, projects: %d\n",
				report.SiteConfig, report.About, report.Skills, report.Experience, report.Projects)
			return nil
		},
	}
}

func openDatabase(flags *dbFlags) (*gorm.DB, error) {
	cfg, err := loadDatabaseConfig(*flags)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// loadDatabaseConfig 以命令行参数优先，其次读取与 API 相同的环境变量。
// 只需要数据库配置，不要求对象存储等其它服务的凭据。
func loadDatabaseConfig(f dbFlags) (config.DatabaseConfig, error) {
	host := firstNonEmpty(f.host, os.Getenv("DATABASE_HOST"), "localhost")
	name := firstNonEmpty(f.name, os.Getenv("POSTGRES_DB"))
	user := firstNonEmpty(f.user, os.Getenv("POSTGRES_USER"))
	password := firstNonEmpty(f.password, os.Getenv("POSTGRES_PASSWORD"))
	sslMode := firstNonEmpty(f.sslMode, os.Getenv("DATABASE_SSLMODE"), "disable")

	port := f.port
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	if name == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if user == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslMode,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

