package entity

// UserState состояние пользователя в диалоге
type UserState string

const (
	StateMainMenu       UserState = "main_menu"       // В главном меню
	StateAwaitingFirst  UserState = "awaiting_first"  // Ожидание первого фото
	StateAwaitingSecond UserState = "awaiting_second" // Ожидание второго фото
	StateProcessing     UserState = "processing"      // Идёт сравнение
)

// User представляет пользователя бота
type User struct {
	ID      int64             // Telegram User ID
	ChatID  int64             // Telegram Chat ID
	State   UserState         // Текущее состояние пользователя
	Pending []byte            // Первое фото, ждущее пары
	Options ComparisonOptions // Настройки сравнения пользователя
}

// NewUser создаёт нового пользователя с начальным состоянием
func NewUser(userID, chatID int64) *User {
	return &User{
		ID:     userID,
		ChatID: chatID,
		State:  StateMainMenu,
	}
}

// SetState обновляет состояние пользователя
func (u *User) SetState(state UserState) {
	u.State = state
}

// Reset возвращает пользователя в главное меню и забывает первое фото
func (u *User) Reset() {
	u.State = StateMainMenu
	u.Pending = nil
}
