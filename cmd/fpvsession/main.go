package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带进程退出码；err 为空表示信息已经输出过（例如报告本身）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// fail 把运行期错误标记为退出码 1（区别于参数错误的 2）。
func fail(err error) error { return &exitError{code: 1, err: err} }

// execute 运行 CLI 并返回退出码：
// 0 成功；1 存在失败/冲突或运行期错误；2 参数错误。
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(newCLI(stdout, stderr))
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "错误：%v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprintln(stderr, `使用 "fpvsession --help" 查看用法。`)
	return 2
}

// isTerminal 只对真实文件描述符判断；测试中的 bytes.Buffer 永远不是终端。
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
