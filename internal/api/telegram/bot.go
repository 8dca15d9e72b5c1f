package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "image-similarity/internal/application"
	"image-similarity/internal/container"
	"image-similarity/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я сравниваю две картинки.

Считаю три оценки:
• смысловое сходство (нейросеть + косинус)
• структурное сходство SSIM с тепловой картой
• совпадения ключевых точек ORB

📋 Команды:
/compare — начать сравнение
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте /compare
2️⃣ Пришлите первое фото
3️⃣ Пришлите второе фото
4️⃣ Получите оценки, тепловую карту и картинку с совпадениями

PNG и WebP лучше присылать файлом, чтобы Telegram не пережимал их.

⚙️ Настройки:
/model resnet50|mobilenet — сеть для признаков
/policy fit|crop|keep_aspect — приведение к общему размеру
/matches N — сколько совпадений рисовать`

	msgAwaitingFirst  = "📸 Пришлите первое фото."
	msgAwaitingSecond = "📸 Теперь пришлите второе фото."
	msgCancelled      = "❌ Операция отменена. Отправьте /compare для нового сравнения."
	msgSendPhoto      = "📸 Пожалуйста, пришлите фото или отправьте /compare."
	msgUnknownCommand = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing     = "⏳ Сравниваю изображения..."
	msgBusy           = "⏳ Предыдущее сравнение ещё идёт, подождите."
	msgDownloadError  = "⚠️ Не удалось скачать файл. Попробуйте ещё раз."
	msgInternalError  = "⚠️ Что-то пошло не так. Попробуйте ещё раз."
	msgSettingsSaved  = "✅ Настройки сохранены.\n\n"
)

// Bot представляет Telegram-бота
type Bot struct {
	api      *tgbotapi.BotAPI
	app      *container.Container
	maxBytes int64
	client   *http.Client
}

// NewBot создаёт нового бота
func NewBot(token string, c *container.Container, maxBytes int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		app:      c,
		maxBytes: maxBytes,
		client:   http.DefaultClient,
	}, nil
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if fileID, size, ok := imageFile(msg); ok {
		b.handleImage(ctx, msg, fileID, size)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	users := b.app.UserService
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch msg.Command() {
	case "start":
		if _, err := users.Cancel(ctx, userID, chatID); err != nil {
			log.Printf("Error resetting user: %v", err)
		}
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "compare":
		if _, err := users.BeginCompare(ctx, userID, chatID); err != nil {
			log.Printf("Error starting comparison: %v", err)
			b.sendMessage(chatID, msgInternalError)
			return
		}
		b.sendMessage(chatID, msgAwaitingFirst)

	case "cancel":
		if _, err := users.Cancel(ctx, userID, chatID); err != nil {
			log.Printf("Error cancelling: %v", err)
		}
		b.sendMessage(chatID, msgCancelled)

	case "model", "policy", "matches":
		b.handleSetting(ctx, msg)

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

// handleSetting меняет настройки сравнения пользователя
func (b *Bot) handleSetting(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.app.UserService.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		log.Printf("Error getting user: %v", err)
		b.sendMessage(msg.Chat.ID, msgInternalError)
		return
	}

	opts, err := applySetting(user.Options, msg.Command(), msg.CommandArguments())
	if err == nil {
		opts, err = b.app.ComparisonService.ResolveOptions(opts)
	}
	if err != nil {
		b.sendMessage(msg.Chat.ID, "⚠️ "+userMessage(err))
		return
	}

	if _, err := b.app.UserService.UpdateOptions(ctx, msg.From.ID, msg.Chat.ID, func(o *entity.ComparisonOptions) {
		*o = opts
	}); err != nil {
		log.Printf("Error saving options: %v", err)
		b.sendMessage(msg.Chat.ID, msgInternalError)
		return
	}
	b.sendMessage(msg.Chat.ID, msgSettingsSaved+formatOptions(opts))
}

// handleImage принимает фото или картинку-документ
func (b *Bot) handleImage(ctx context.Context, msg *tgbotapi.Message, fileID string, size int) {
	if b.maxBytes > 0 && int64(size) > b.maxBytes {
		b.sendMessage(msg.Chat.ID, "⚠️ "+userMessage(entity.ImageTooLarge("image exceeds %d bytes", b.maxBytes)))
		return
	}

	data, err := b.downloadFile(ctx, fileID)
	if err != nil {
		log.Printf("Error downloading photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgDownloadError)
		return
	}

	_, req, err := b.app.UserService.AcceptImage(ctx, msg.From.ID, msg.Chat.ID, data)
	if errors.Is(err, app.ErrBusy) {
		b.sendMessage(msg.Chat.ID, msgBusy)
		return
	}
	if err != nil {
		log.Printf("Error accepting photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgInternalError)
		return
	}
	if req == nil {
		b.sendMessage(msg.Chat.ID, msgAwaitingSecond)
		return
	}

	b.sendMessage(msg.Chat.ID, msgProcessing)
	go b.compare(ctx, msg.From.ID, msg.Chat.ID, *req)
}

// compare запускает сравнение и отправляет результат
func (b *Bot) compare(ctx context.Context, userID, chatID int64, req entity.ComparisonRequest) {
	defer func() {
		if _, err := b.app.UserService.Finish(ctx, userID, chatID); err != nil {
			log.Printf("Error finishing comparison: %v", err)
		}
	}()

	ctx = app.WithRequestID(ctx, fmt.Sprintf("tg-%d-%d", chatID, userID))
	res, err := b.app.ComparisonService.Compare(ctx, req)
	if err != nil {
		b.sendMessage(chatID, "⚠️ "+userMessage(err))
		return
	}

	b.sendMessage(chatID, formatResult(res))
	b.sendPhoto(chatID, "ssim_heatmap.png", res.Heatmap, "Тепловая карта SSIM")
	b.sendPhoto(chatID, "orb_matches.png", res.MatchesImage, fmt.Sprintf("Совпадения ORB: %d", res.MatchCount))
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if b.maxBytes > 0 {
		body = io.LimitReader(resp.Body, b.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// sendPhoto отправляет PNG из памяти
func (b *Bot) sendPhoto(chatID int64, name string, data []byte, caption string) {
	if len(data) == 0 {
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		log.Printf("Error sending photo: %v", err)
	}
}

// imageFile достаёт файл из фото (наибольший размер) или документа-картинки
func imageFile(msg *tgbotapi.Message) (string, int, bool) {
	if len(msg.Photo) > 0 {
		p := msg.Photo[len(msg.Photo)-1]
		return p.FileID, p.FileSize, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, msg.Document.FileSize, true
	}
	return "", 0, false
}

// applySetting применяет аргумент команды настройки к опциям
func applySetting(opts entity.ComparisonOptions, command, arg string) (entity.ComparisonOptions, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return opts, entity.InvalidRequest("/%s needs a value, see /help", command)
	}

	switch command {
	case "model":
		opts.FeatureExtractor = entity.ModelKind(strings.ToLower(arg))
	case "policy":
		opts.ResizePolicy = entity.ResizePolicy(strings.ToLower(arg))
	case "matches":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return opts, entity.InvalidRequest("maxOrbMatches must be a positive integer")
		}
		opts.MaxMatches = n
	}
	return opts, nil
}

// formatOptions текст с текущими настройками
func formatOptions(opts entity.ComparisonOptions) string {
	return fmt.Sprintf("Модель: %s\nПолитика: %s\nСовпадений: %d", opts.FeatureExtractor, opts.ResizePolicy, opts.MaxMatches)
}

// formatResult текстовая сводка сравнения
func formatResult(res *entity.ComparisonResult) string {
	var sb strings.Builder
	sb.WriteString("📊 Результат сравнения\n\n")
	fmt.Fprintf(&sb, "🧠 Смысловое сходство: %.2f%% (cos = %.4f)\n", res.CosinePercentage, res.CosineSimilarity)
	fmt.Fprintf(&sb, "🧩 Структурное сходство: %.2f%% (SSIM = %.4f)\n", res.SSIMPercentage, res.SSIMScore)
	fmt.Fprintf(&sb, "🔗 Совпадения точек: %d (точек: %d и %d)\n\n", res.MatchCount, res.KeypointsA, res.KeypointsB)
	fmt.Fprintf(&sb, "Модель: %s, политика: %s, %d мс", res.FeatureExtractor, res.ResizePolicy, res.Elapsed.Milliseconds())
	return sb.String()
}

// userMessage текст ошибки для пользователя без внутренних деталей
func userMessage(err error) string {
	ce := entity.AsComparisonError(err)
	switch ce.Code {
	case entity.CodeInvalidImage:
		return "Файл не похож на JPEG, PNG или WebP."
	case entity.CodeImageTooLarge:
		return "Изображение слишком большое."
	case entity.CodeDegenerateVector:
		return "На изображении нечего сравнивать: оно сплошь нейтрально-серое."
	case entity.CodeTimeout:
		return "Сравнение заняло слишком много времени."
	case entity.CodeInvalidRequest:
		return ce.Message
	}
	return "Не удалось сравнить изображения. Попробуйте другие фото."
}
