// Package main 提供 smsctl 命令行工具，直接调用订单服务完成搜索、购买、对账与收码。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, defaultCoreFactory).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
