// Package main - утилита командной строки для работы с очередями лидерборда.
//
// Команды:
//
//	lbctl produce user_registered 1 alice    отправить одну команду
//	lbctl load --users 100 --fake            заполнить рейтинг тестовыми данными
//	lbctl monitor                            печатать сообщения выходной очереди
//
// Подключение к брокеру настраивается теми же переменными окружения, что и сервис.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openBroker).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
