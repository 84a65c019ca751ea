package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/wechatpad/internal/config"
	"github.com/wechatpad/internal/db"
)

// 创建本地账号，登录后该账号使用独立的数据库
func main() {
	username := flag.String("user", "", "account name")
	password := flag.String("password", "", "account password")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *username == "" {
		*username = cfg.AdminUserName
	}
	if *password == "" {
		*password = cfg.AdminPassword
	}
	if *username == "" || *password == "" {
		log.Fatal("用户名和密码不能为空")
	}

	registry, err := db.OpenRegistry(cfg.DataDir, false)
	if err != nil {
		log.Fatalf("failed to open account registry: %v", err)
	}
	defer registry.Close()

	ctx := context.Background()
	if _, err := registry.Find(ctx, *username); err == nil {
		fmt.Println("账号已存在，无需创建")
		return
	}
	if _, err := registry.Create(ctx, *username, *password); err != nil {
		log.Fatalf("创建账号失败: %v", err)
	}
	fmt.Printf("账号 %s 创建成功，数据库: %s\n", *username, db.DatabaseName(*username))
}
