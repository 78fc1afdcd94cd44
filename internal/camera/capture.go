package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFmpegSensor はffmpeg経由でV4L2デバイスからMJPEGを取得するセンサー
//
// ffmpegの出力から切り出したJPEGは1枠のメールボックスに上書きで置かれ、
// Grabは最新の1枚だけを受け取る。ffmpegが終了した後のGrabはすべて終了理由を返す。
type FFmpegSensor struct {
	settings Settings
	command  string

	mu  sync.Mutex
	run *ffmpegRun
}

// ffmpegRun は起動したffmpeg 1回分の状態
type ffmpegRun struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	latest chan []byte
	done   chan struct{} // ffmpegが終了し、errが確定したら閉じる
	err    error         // doneが閉じた後にのみ読む
}

// failure はffmpegが終了していればその理由を返す
func (r *ffmpegRun) failure() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// NewFFmpegSensor は新しいFFmpegSensorを作成する
func NewFFmpegSensor(settings Settings) *FFmpegSensor {
	return &FFmpegSensor{
		settings: settings,
		command:  "ffmpeg",
	}
}

// NewFFmpegSensorFromConfig は設定からFFmpegSensorを作成する
func NewFFmpegSensorFromConfig(settings Settings) (Sensor, error) {
	if settings.Device == "" {
		return nil, fmt.Errorf("ffmpegセンサーの作成にはデバイスパスが必要です")
	}
	if settings.Format != FormatJPEG {
		return nil, fmt.Errorf("ffmpegセンサーはJPEGのみ対応しています: %s", settings.Format)
	}
	return NewFFmpegSensor(settings), nil
}

// args はffmpegの引数を組み立てる
func (c *FFmpegSensor) args() []string {
	return []string{
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.settings.Width, c.settings.Height),
		"-r", strconv.Itoa(c.settings.FPS),
		"-i", c.settings.Device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(c.settings.JPEGQuality),
		"-",
	}
}

// Open はffmpegを起動してフレームの読み取りを開始する
func (c *FFmpegSensor) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return nil // 既に開始済み
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, c.command, c.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	run := &ffmpegRun{
		cmd:    cmd,
		cancel: cancel,
		latest: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	c.run = run

	go run.readFrames(stdout, &stderr)

	// 最初のフレームが届くまで待つ（デバイスが使えない場合はここで失敗する）
	select {
	case frame := <-run.latest:
		offer(run.latest, frame)
		return nil
	case <-run.done:
		c.stopLocked()
		return run.err
	case <-ctx.Done():
		c.stopLocked()
		return ctx.Err()
	case <-time.After(10 * time.Second):
		c.stopLocked()
		return fmt.Errorf("最初のフレームの取得がタイムアウトしました")
	}
}

// readFrames はffmpegの出力からJPEGを切り出してメールボックスに置く
// 出力が終わったら終了理由を記録してdoneを閉じる
func (r *ffmpegRun) readFrames(stdout io.Reader, stderr *bytes.Buffer) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		offer(r.latest, frame)
	}

	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	waitErr := r.cmd.Wait()
	r.err = fmt.Errorf("ffmpegが終了しました: %w (wait: %v, stderr: %s)", err, waitErr, stderr.String())
	close(r.done)
}

// offer はメールボックスを最新フレームで上書きする
func offer(latest chan []byte, frame []byte) {
	select {
	case latest <- frame:
		return
	default:
	}
	// 古いフレームを破棄してから置き直す
	select {
	case <-latest:
	default:
	}
	select {
	case latest <- frame:
	default:
	}
}

// Grab は次のフレームを取得する
// ffmpegの終了後は、メールボックスに残ったフレームがあっても終了理由を返す
func (c *FFmpegSensor) Grab(ctx context.Context) (RawFrame, error) {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run == nil {
		return RawFrame{}, fmt.Errorf("センサーが開かれていません")
	}
	if err := run.failure(); err != nil {
		return RawFrame{}, err
	}

	select {
	case frame := <-run.latest:
		return RawFrame{
			Data:      frame,
			Width:     c.settings.Width,
			Height:    c.settings.Height,
			Format:    FormatJPEG,
			Timestamp: time.Now(),
		}, nil
	case <-run.done:
		return RawFrame{}, run.err
	case <-ctx.Done():
		return RawFrame{}, ctx.Err()
	}
}

// Close はffmpegを停止する
func (c *FFmpegSensor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *FFmpegSensor) stopLocked() {
	if c.run == nil {
		return
	}
	c.run.cancel()
	<-c.run.done
	c.run = nil
}

// Info はセンサー情報を返す
func (c *FFmpegSensor) Info() SensorInfo {
	return SensorInfo{
		Type:   SensorTypeFFmpeg,
		Name:   fmt.Sprintf("ffmpeg (%s)", c.settings.Device),
		Device: c.settings.Device,
		Width:  c.settings.Width,
		Height: c.settings.Height,
		FPS:    c.settings.FPS,
		Format: FormatJPEG,
	}
}

var (
	jpegEOI = []byte{0xFF, 0xD9}
)

// splitJPEG はMJPEGのバイト列をJPEGごとに切り出すbufio.SplitFunc
// 開始マーカー(FF D8)より前のゴミは読み捨てる
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// 末尾の0xFFは次のチャンクの開始マーカーの可能性がある
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+2:], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// 完全なフレームがまだない
		return start, nil, nil
	}

	end += start + 2 + 2 // マーカーのサイズを含める
	return end, data[start:end], nil
}
