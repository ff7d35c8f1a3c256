package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dlogic/tagreport/internal/metrics"
	"github.com/dlogic/tagreport/internal/model"
)

// CloudClient はプロバイダへの認証とセンサー一覧取得のインターフェース。
type CloudClient interface {
	SignIn(ctx context.Context, account model.Account) (string, error)
	ListSensors(ctx context.Context, sessionID string) ([]model.Sensor, error)
}

// AccountLister は登録済みプロバイダアカウントの列挙。
type AccountLister interface {
	FindAll(ctx context.Context) ([]model.Account, error)
}

// SensorStore はセンサーディレクトリの入れ替え。
type SensorStore interface {
	ReplaceAll(ctx context.Context, sensors []model.Sensor) error
}

// ZoneResolver はジョブのゾーンID群からゾーンを解決する。
type ZoneResolver interface {
	FindByIDs(ctx context.Context, ids []int) ([]model.Zone, error)
}

// ArchiveUploader はレポートファイルの共有先アップロード。
type ArchiveUploader interface {
	Upload(ctx context.Context, files []string, sharePath string, date time.Time) error
}

// ReportMailer はアーカイブ添付メールの送信。
type ReportMailer interface {
	Send(ctx context.Context, recipient, subject, body, attachment string) error
}

// Service はレポートジョブ1回分の実行を組み立てるオーケストレータ。
// uploaderとmailerはnil可で、nilのステージはスキップとして記録される。
// 同時実行はミューテックスで直列化する（作業ディレクトリとセンサー
// ディレクトリの単一ライターを保つ）。
type Service struct {
	cloud    CloudClient
	accounts AccountLister
	sensors  SensorStore
	zones    ZoneResolver
	agg      *Aggregator
	renderer *Renderer
	ws       *Workspace
	uploader ArchiveUploader
	mailer   ReportMailer
	recorder metrics.Recorder
	logger   *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	cloud CloudClient,
	accounts AccountLister,
	sensors SensorStore,
	zones ZoneResolver,
	agg *Aggregator,
	renderer *Renderer,
	ws *Workspace,
	uploader ArchiveUploader,
	mailer ReportMailer,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		cloud:    cloud,
		accounts: accounts,
		sensors:  sensors,
		zones:    zones,
		agg:      agg,
		renderer: renderer,
		ws:       ws,
		uploader: uploader,
		mailer:   mailer,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// RunJob はジョブを1回実行し、実行レポートを返す。
// 実行レポートはエラー時も必ず返る。全体のエラーになるのは
// 作業ディレクトリの用意・ディレクトリ更新の永続化・ゾーン解決・
// 全ゾーンの生成失敗・アーカイブ作成の失敗のみで、センサー単位・
// ゾーン単位・配送ステージの失敗は警告として記録して続行する。
func (s *Service) RunJob(ctx context.Context, job model.ReportJob) (*model.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startedAt := s.now()
	start, end := Window(startedAt, job.BeginHour, job.LookbackHours)
	rep := model.NewRunReport(job.ID, start, end)
	defer rep.Finish()

	s.logger.Info("レポートジョブを開始します",
		slog.String("job_id", job.ID),
		slog.String("job_name", job.Name),
		slog.Time("window_start", start),
		slog.Time("window_end", end),
	)

	err := s.run(ctx, job, rep, start, end)

	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.recorder.ObserveRun(status, s.now().Sub(startedAt))
	return rep, err
}

func (s *Service) run(ctx context.Context, job model.ReportJob, rep *model.RunReport, start, end time.Time) error {
	dir, err := s.ws.Reset(end)
	if err != nil {
		return fmt.Errorf("作業ディレクトリの用意に失敗しました: %w", err)
	}

	sessions, err := s.refreshDirectory(ctx, rep)
	if err != nil {
		return err
	}

	zones, err := s.zones.FindByIDs(ctx, job.ZoneIDs)
	if err != nil {
		return fmt.Errorf("ゾーンの解決に失敗しました: %w", err)
	}
	if len(zones) == 0 {
		rep.Warnf("", "ジョブに一致するゾーンがありません")
		return nil
	}

	docs := s.renderZones(ctx, zones, sessions, start, end, dir, rep)
	if len(docs) == 0 {
		return errors.New("すべてのゾーンでレポート生成に失敗しました")
	}

	archive, err := s.ws.Archive(docs, end)
	if err != nil {
		return fmt.Errorf("アーカイブの作成に失敗しました: %w", err)
	}
	rep.Infof("", "アーカイブを作成しました（ドキュメント %d件）", len(docs))

	s.upload(ctx, job, docs, end, rep)
	s.deliverMail(ctx, job, archive, end, rep)
	return nil
}

// refreshDirectory は全アカウントでサインインしてセンサー一覧を取得し、
// センサーディレクトリを入れ替える。アカウント単位の失敗は警告として
// スキップし、永続化の失敗のみエラーとする。
// 戻り値はアカウントemail→セッショントークンのマップ。
func (s *Service) refreshDirectory(ctx context.Context, rep *model.RunReport) (map[string]string, error) {
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}

	sessions := make(map[string]string, len(accounts))
	var directory []model.Sensor
	for _, account := range accounts {
		session, err := s.cloud.SignIn(ctx, account)
		if err != nil {
			s.logger.Error("サインインに失敗しました",
				slog.String("account", account.Email), slog.String("error", err.Error()))
			rep.Warnf("", "アカウント %s のサインインに失敗しました: %v", account.Email, err)
			continue
		}
		sessions[account.Email] = session

		tags, err := s.cloud.ListSensors(ctx, session)
		if err != nil {
			s.logger.Error("センサー一覧の取得に失敗しました",
				slog.String("account", account.Email), slog.String("error", err.Error()))
			rep.Warnf("", "アカウント %s のセンサー一覧取得に失敗しました: %v", account.Email, err)
			continue
		}
		for i := range tags {
			tags[i].AccountEmail = account.Email
		}
		directory = append(directory, tags...)
	}

	if err := s.sensors.ReplaceAll(ctx, directory); err != nil {
		return nil, fmt.Errorf("センサーディレクトリの更新に失敗しました: %w", err)
	}
	s.recorder.SetSensorsRefreshed(len(directory))
	rep.Infof("", "センサーディレクトリを更新しました（アカウント %d/%d件、センサー %d件）",
		len(sessions), len(accounts), len(directory))
	return sessions, nil
}

// renderZones はゾーンごとに集約と描画を行い、生成できたドキュメントの
// パス群を返す。ゾーン単位の失敗は警告として記録して続行する。
func (s *Service) renderZones(ctx context.Context, zones []model.Zone, sessions map[string]string, start, end time.Time, dir string, rep *model.RunReport) []string {
	docs := make([]string, 0, len(zones))
	for _, zone := range zones {
		dataset, err := s.agg.LoadZoneMeasurements(ctx, zone, sessions, start, end, rep)
		if err != nil {
			s.logger.Error("ゾーンの集約に失敗しました",
				slog.String("zone", zone.Name), slog.String("error", err.Error()))
			rep.Warnf(zone.Name, "測定値の集約に失敗しました: %v", err)
			continue
		}

		path, name, err := s.renderer.Render(dataset, start, end, dir)
		if err != nil {
			s.logger.Error("レポートの生成に失敗しました",
				slog.String("zone", zone.Name), slog.String("error", err.Error()))
			rep.Warnf(zone.Name, "レポートの生成に失敗しました: %v", err)
			continue
		}

		docs = append(docs, path)
		s.recorder.IncDocumentsRendered()
		rep.Infof(zone.Name, "レポートを生成しました: %s", name)
	}
	return docs
}

// upload はドキュメント群を共有先にアップロードする。ステージ単位で
// 隔離され、失敗しても残りのステージは続行する。
func (s *Service) upload(ctx context.Context, job model.ReportJob, docs []string, date time.Time, rep *model.RunReport) {
	if s.uploader == nil {
		rep.Infof("", "アップロード先が未設定のためスキップします")
		return
	}
	if err := s.uploader.Upload(ctx, docs, job.SharePath, date); err != nil {
		s.logger.Error("共有先へのアップロードに失敗しました",
			slog.String("share_path", job.SharePath), slog.String("error", err.Error()))
		rep.Warnf("", "共有先へのアップロードに失敗しました: %v", err)
		s.recorder.IncDeliveryFailure("smb")
		return
	}
	rep.Infof("", "共有先にアップロードしました（%d件）", len(docs))
}

// deliverMail はアーカイブを宛先ごとに送信する。宛先単位で隔離され、
// 1宛先の失敗が残りの宛先を中断させない。
func (s *Service) deliverMail(ctx context.Context, job model.ReportJob, archive string, end time.Time, rep *model.RunReport) {
	if s.mailer == nil || len(job.Recipients) == 0 {
		rep.Infof("", "メール送信が未設定のためスキップします")
		return
	}

	subject := fmt.Sprintf("センサーレポート %s", end.Format("02-01-2006"))
	body := fmt.Sprintf("%s のレポートアーカイブを送付します。\n対象期間: %s - %s\n",
		job.Name,
		rep.WindowStart.Format("02-01-2006 15:04"),
		rep.WindowEnd.Format("02-01-2006 15:04"))

	sent := 0
	for _, recipient := range job.Recipients {
		if err := s.mailer.Send(ctx, recipient, subject, body, archive); err != nil {
			s.logger.Error("メール送信に失敗しました",
				slog.String("recipient", recipient), slog.String("error", err.Error()))
			rep.Warnf("", "%s へのメール送信に失敗しました: %v", recipient, err)
			s.recorder.IncDeliveryFailure("mail")
			continue
		}
		sent++
	}
	rep.Infof("", "メールを送信しました（%d/%d宛先）", sent, len(job.Recipients))
}
